package repo

import (
	"net/url"
	"strconv"
	"time"
)

// ParamsFromQuery builds ListParams from request query values. Unknown
// keys are ignored; custom filter keys must be listed by the caller so
// arbitrary query parameters cannot reach the filter hooks.
func ParamsFromQuery(values url.Values, filterKeys ...string) ListParams {
	params := ListParams{
		Search:     values.Get("search"),
		SortBy:     values.Get("sortBy"),
		SortDesc:   values.Get("sortDir") == "desc",
		Status:     values.Get("status"),
		CreatedBy:  values.Get("createdBy"),
		AssignedTo: values.Get("assignedTo"),
	}
	if page, err := strconv.Atoi(values.Get("page")); err == nil {
		params.Page = page
	}
	if size, err := strconv.Atoi(values.Get("pageSize")); err == nil {
		params.PageSize = size
	}
	if from, err := time.Parse(time.RFC3339, values.Get("createdFrom")); err == nil {
		params.CreatedFrom = from
	}
	if to, err := time.Parse(time.RFC3339, values.Get("createdTo")); err == nil {
		params.CreatedTo = to
	}
	for _, key := range filterKeys {
		if v := values.Get(key); v != "" {
			if params.Filters == nil {
				params.Filters = map[string]string{}
			}
			params.Filters[key] = v
		}
	}
	return params
}
