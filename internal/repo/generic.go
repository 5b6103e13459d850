// Package repo provides the generic data-access layer. Every query it
// issues carries the tenant filter and the soft-delete filter, so no code
// path reaches the backing store unscoped unless the principal is a
// super-admin.
package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/text/cases"

	"github.com/meridian-crm/meridian/internal/query"
	"github.com/meridian-crm/meridian/internal/shared"
	"github.com/meridian-crm/meridian/internal/tenancy"
)

// Querier is the storage client surface the repository needs. Both
// *pgxpool.Pool and pgx.Tx satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// FilterHook translates a custom filter value into a query filter.
type FilterHook func(value string) query.Filter

// Config describes one table to the generic repository. Zero values give
// the standard behavior: tenant-scoped, soft-deleting on deleted_at.
type Config[T, C, U any] struct {
	// Resource names the entity in errors, e.g. "customers".
	Resource string
	Table    string
	// Columns is the full select list; also the set of sortable columns.
	Columns []string

	// Unscoped disables tenant filtering for platform-level tables.
	Unscoped bool
	// TenantColumn defaults to "tenant_id".
	TenantColumn string

	// HardDelete disables soft deletion; Delete then removes rows.
	HardDelete bool
	// SoftDeleteColumn defaults to "deleted_at".
	SoftDeleteColumn string

	// Searchable columns participate in the OR'd substring search.
	Searchable []string
	// DefaultSort is an ORDER BY body, e.g. "created_at DESC".
	DefaultSort string
	// ReadOnly columns are stripped from updates in addition to the
	// always-protected id, tenant and creation-stamp columns.
	ReadOnly []string
	// FilterHooks handle custom filter keys from ListParams.Filters.
	FilterHooks map[string]FilterHook

	// ToInsert and ToUpdate map input shapes to column values.
	ToInsert func(C) map[string]any
	ToUpdate func(U) map[string]any
}

// ListParams carries filtering, search, sort and pagination for FindMany
// and Count.
type ListParams struct {
	Page     int
	PageSize int

	Search   string
	SortBy   string // accepts the entity naming convention, e.g. "createdAt"
	SortDesc bool

	Status      string
	CreatedBy   string
	AssignedTo  string
	CreatedFrom time.Time
	CreatedTo   time.Time

	// Filters feeds the configured FilterHooks by key.
	Filters map[string]string
}

// Page is one page of results.
type Page[T any] struct {
	Data     []T `json:"data"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var searchFolder = cases.Fold()

// Repository is a generic tenant-scoped repository over entity T with
// create input C and update input U.
type Repository[T, C, U any] struct {
	db  Querier
	cfg Config[T, C, U]
	now func() time.Time
}

// New constructs a Repository, applying config defaults.
func New[T, C, U any](db Querier, cfg Config[T, C, U]) *Repository[T, C, U] {
	if cfg.TenantColumn == "" {
		cfg.TenantColumn = "tenant_id"
	}
	if cfg.SoftDeleteColumn == "" {
		cfg.SoftDeleteColumn = "deleted_at"
	}
	if cfg.DefaultSort == "" {
		cfg.DefaultSort = "created_at DESC"
	}
	return &Repository[T, C, U]{db: db, cfg: cfg, now: time.Now}
}

// FindMany returns one page of rows matching params, always scoped to the
// principal's tenant and excluding soft-deleted rows.
func (r *Repository[T, C, U]) FindMany(ctx context.Context, p *tenancy.Principal, params ListParams) (Page[T], error) {
	filters := r.listFilters(p, params)
	where, args := query.Compile(filters, 1)

	total, err := r.countWhere(ctx, where, args)
	if err != nil {
		return Page[T]{}, err
	}

	page := params.Page
	if page <= 0 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	offset := (page - 1) * pageSize

	sql := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d",
		strings.Join(r.cfg.Columns, ", "), r.cfg.Table, where,
		r.orderBy(params), len(args)+1, len(args)+2,
	)
	args = append(args, pageSize, offset)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return Page[T]{}, fmt.Errorf("%s: find many: %w", r.cfg.Resource, err)
	}
	data, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[T])
	if err != nil {
		return Page[T]{}, fmt.Errorf("%s: find many: %w", r.cfg.Resource, err)
	}
	return Page[T]{Data: data, Total: total, Page: page, PageSize: pageSize}, nil
}

// FindByID returns the row with the given id within the principal's tenant
// scope. A row owned by another tenant is indistinguishable from a missing
// one.
func (r *Repository[T, C, U]) FindByID(ctx context.Context, p *tenancy.Principal, id string) (T, error) {
	var zero T
	filters := append(r.baseFilters(p), query.Eq("id", id))
	where, args := query.Compile(filters, 1)
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(r.cfg.Columns, ", "), r.cfg.Table, where)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return zero, fmt.Errorf("%s: find by id: %w", r.cfg.Resource, err)
	}
	entity, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[T])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, &shared.NotFoundError{Resource: r.cfg.Resource, ID: id}
		}
		return zero, fmt.Errorf("%s: find by id: %w", r.cfg.Resource, err)
	}
	return entity, nil
}

// Create inserts a new row. The tenant stamp always comes from the
// principal; a caller-supplied tenant for a non-super-admin is overridden,
// and created/updated stamps are forced from the principal and clock.
func (r *Repository[T, C, U]) Create(ctx context.Context, p *tenancy.Principal, input C) (T, error) {
	var zero T
	row := r.cfg.ToInsert(input)

	if _, ok := row["id"]; !ok {
		row["id"] = uuid.NewString()
	}
	if !r.cfg.Unscoped {
		provided, _ := row[r.cfg.TenantColumn].(string)
		row[r.cfg.TenantColumn] = nullable(tenancy.OperationTenantID(p, provided))
	}
	now := r.now().UTC()
	row["created_by"] = p.ID
	row["updated_by"] = p.ID
	row["created_at"] = now
	row["updated_at"] = now

	columns := sortedKeys(row)
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[col]
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		r.cfg.Table, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
		strings.Join(r.cfg.Columns, ", "),
	)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return zero, r.writeError("create", err)
	}
	entity, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[T])
	if err != nil {
		return zero, r.writeError("create", err)
	}
	return entity, nil
}

// Update mutates the row after a tenant-scoped existence check. The write
// itself re-applies the tenant and soft-delete filters in the same
// statement, so it cannot cross tenants even if the precheck raced.
func (r *Repository[T, C, U]) Update(ctx context.Context, p *tenancy.Principal, id string, input U) (T, error) {
	var zero T
	if _, err := r.FindByID(ctx, p, id); err != nil {
		return zero, err
	}

	row := r.cfg.ToUpdate(input)
	r.stripReadOnly(row)
	row["updated_by"] = p.ID
	row["updated_at"] = r.now().UTC()

	columns := sortedKeys(row)
	assignments := make([]string, len(columns))
	args := make([]any, 0, len(columns)+2)
	for i, col := range columns {
		assignments[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, row[col])
	}
	filters := append(r.baseFilters(p), query.Eq("id", id))
	where, whereArgs := query.Compile(filters, len(args)+1)
	args = append(args, whereArgs...)

	sql := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s RETURNING %s",
		r.cfg.Table, strings.Join(assignments, ", "), where,
		strings.Join(r.cfg.Columns, ", "),
	)
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return zero, r.writeError("update", err)
	}
	entity, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[T])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, &shared.NotFoundError{Resource: r.cfg.Resource, ID: id}
		}
		return zero, r.writeError("update", err)
	}
	return entity, nil
}

// Delete removes the row, soft-deleting unless the table is configured for
// hard deletion. The write is tenant-filtered like every other statement.
func (r *Repository[T, C, U]) Delete(ctx context.Context, p *tenancy.Principal, id string) error {
	if _, err := r.FindByID(ctx, p, id); err != nil {
		return err
	}

	filters := append(r.baseFilters(p), query.Eq("id", id))
	var (
		sql  string
		args []any
	)
	if r.cfg.HardDelete {
		where, whereArgs := query.Compile(filters, 1)
		sql = fmt.Sprintf("DELETE FROM %s WHERE %s", r.cfg.Table, where)
		args = whereArgs
	} else {
		now := r.now().UTC()
		where, whereArgs := query.Compile(filters, 3)
		sql = fmt.Sprintf(
			"UPDATE %s SET %s = $1, updated_at = $1, updated_by = $2 WHERE %s",
			r.cfg.Table, r.cfg.SoftDeleteColumn, where,
		)
		args = append([]any{now, p.ID}, whereArgs...)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return r.writeError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Resource: r.cfg.Resource, ID: id}
	}
	return nil
}

// Restore clears the soft-delete marker on a previously deleted row.
func (r *Repository[T, C, U]) Restore(ctx context.Context, p *tenancy.Principal, id string) (T, error) {
	var zero T
	if r.cfg.HardDelete {
		return zero, fmt.Errorf("%s: restore unsupported for hard-deleted tables", r.cfg.Resource)
	}
	filters := append(r.tenantFilters(p),
		query.NotNull(r.cfg.SoftDeleteColumn),
		query.Eq("id", id),
	)
	where, whereArgs := query.Compile(filters, 3)
	sql := fmt.Sprintf(
		"UPDATE %s SET %s = NULL, updated_at = $1, updated_by = $2 WHERE %s RETURNING %s",
		r.cfg.Table, r.cfg.SoftDeleteColumn, where,
		strings.Join(r.cfg.Columns, ", "),
	)
	args := append([]any{r.now().UTC(), p.ID}, whereArgs...)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return zero, r.writeError("restore", err)
	}
	entity, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[T])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, &shared.NotFoundError{Resource: r.cfg.Resource, ID: id}
		}
		return zero, r.writeError("restore", err)
	}
	return entity, nil
}

// Count returns the number of rows matching params within tenant scope.
func (r *Repository[T, C, U]) Count(ctx context.Context, p *tenancy.Principal, params ListParams) (int, error) {
	where, args := query.Compile(r.listFilters(p, params), 1)
	return r.countWhere(ctx, where, args)
}

// Exists reports whether a row with the given id is visible to p.
func (r *Repository[T, C, U]) Exists(ctx context.Context, p *tenancy.Principal, id string) (bool, error) {
	filters := append(r.baseFilters(p), query.Eq("id", id))
	where, args := query.Compile(filters, 1)
	sql := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s)", r.cfg.Table, where)
	var exists bool
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: exists: %w", r.cfg.Resource, err)
	}
	return exists, nil
}

// tenantFilters applies only the tenant scope.
func (r *Repository[T, C, U]) tenantFilters(p *tenancy.Principal) []query.Filter {
	if r.cfg.Unscoped {
		return nil
	}
	return tenancy.TenantFilter(p, r.cfg.TenantColumn)
}

// baseFilters applies tenant scope plus the soft-delete exclusion.
func (r *Repository[T, C, U]) baseFilters(p *tenancy.Principal) []query.Filter {
	filters := r.tenantFilters(p)
	if !r.cfg.HardDelete {
		filters = append(filters, query.IsNull(r.cfg.SoftDeleteColumn))
	}
	return filters
}

func (r *Repository[T, C, U]) listFilters(p *tenancy.Principal, params ListParams) []query.Filter {
	filters := r.baseFilters(p)
	if params.Status != "" {
		filters = append(filters, query.Eq("status", params.Status))
	}
	if params.CreatedBy != "" {
		filters = append(filters, query.Eq("created_by", params.CreatedBy))
	}
	if params.AssignedTo != "" {
		filters = append(filters, query.Eq("assigned_to", params.AssignedTo))
	}
	if !params.CreatedFrom.IsZero() {
		filters = append(filters, query.Gte("created_at", params.CreatedFrom))
	}
	if !params.CreatedTo.IsZero() {
		filters = append(filters, query.Lte("created_at", params.CreatedTo))
	}
	for _, key := range sortedKeys(params.Filters) {
		hook, ok := r.cfg.FilterHooks[key]
		if !ok {
			continue
		}
		filters = append(filters, hook(params.Filters[key]))
	}
	if params.Search != "" && len(r.cfg.Searchable) > 0 {
		pattern := "%" + searchFolder.String(strings.TrimSpace(params.Search)) + "%"
		group := make([]query.Filter, 0, len(r.cfg.Searchable))
		for _, col := range r.cfg.Searchable {
			group = append(group, query.ILike(col, pattern))
		}
		filters = append(filters, query.Or(group...))
	}
	return filters
}

func (r *Repository[T, C, U]) countWhere(ctx context.Context, where string, args []any) (int, error) {
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", r.cfg.Table, where)
	var total int
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("%s: count: %w", r.cfg.Resource, err)
	}
	return total, nil
}

// orderBy resolves the sort column, translating the entity naming
// convention (createdAt) to the storage convention (created_at) and
// refusing anything outside the configured column list.
func (r *Repository[T, C, U]) orderBy(params ListParams) string {
	if params.SortBy == "" {
		return r.cfg.DefaultSort
	}
	column := ToSnake(params.SortBy)
	allowed := false
	for _, c := range r.cfg.Columns {
		if c == column {
			allowed = true
			break
		}
	}
	if !allowed {
		return r.cfg.DefaultSort
	}
	if params.SortDesc {
		return column + " DESC"
	}
	return column + " ASC"
}

func (r *Repository[T, C, U]) stripReadOnly(row map[string]any) {
	delete(row, "id")
	delete(row, r.cfg.TenantColumn)
	delete(row, "created_by")
	delete(row, "created_at")
	for _, col := range r.cfg.ReadOnly {
		delete(row, col)
	}
}

func (r *Repository[T, C, U]) writeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &shared.ConflictError{Resource: r.cfg.Resource}
	}
	return fmt.Errorf("%s: %s: %w", r.cfg.Resource, op, err)
}

// ToSnake converts camelCase field names to snake_case column names.
func ToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
