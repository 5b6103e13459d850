// Package query provides a small filter AST compiled to parameterised SQL.
// Repositories build filters as values and interpret them against the
// storage client, which keeps tenant scoping testable without a database.
package query

import (
	"fmt"
	"strings"
)

// Filter is one node of a WHERE clause.
type Filter interface {
	append(c *compiler)
}

type compiler struct {
	b    strings.Builder
	args []any
	base int
}

// bind registers a value and returns its placeholder number.
func (c *compiler) bind(value any) int {
	c.args = append(c.args, value)
	return c.base + len(c.args)
}

type eq struct {
	column string
	value  any
}

func (f eq) append(c *compiler) {
	fmt.Fprintf(&c.b, "%s = $%d", f.column, c.bind(f.value))
}

type ilike struct {
	column  string
	pattern string
}

func (f ilike) append(c *compiler) {
	fmt.Fprintf(&c.b, "%s ILIKE $%d", f.column, c.bind(f.pattern))
}

type gte struct {
	column string
	value  any
}

func (f gte) append(c *compiler) {
	fmt.Fprintf(&c.b, "%s >= $%d", f.column, c.bind(f.value))
}

type lte struct {
	column string
	value  any
}

func (f lte) append(c *compiler) {
	fmt.Fprintf(&c.b, "%s <= $%d", f.column, c.bind(f.value))
}

type isNull struct {
	column string
}

func (f isNull) append(c *compiler) {
	c.b.WriteString(f.column + " IS NULL")
}

type notNull struct {
	column string
}

func (f notNull) append(c *compiler) {
	c.b.WriteString(f.column + " IS NOT NULL")
}

type orGroup struct {
	filters []Filter
}

func (f orGroup) append(c *compiler) {
	if len(f.filters) == 0 {
		c.b.WriteString("TRUE")
		return
	}
	c.b.WriteString("(")
	for i, inner := range f.filters {
		if i > 0 {
			c.b.WriteString(" OR ")
		}
		inner.append(c)
	}
	c.b.WriteString(")")
}

// Eq matches rows where column equals value.
func Eq(column string, value any) Filter { return eq{column: column, value: value} }

// ILike matches rows where column matches pattern case-insensitively.
func ILike(column, pattern string) Filter { return ilike{column: column, pattern: pattern} }

// Gte matches rows where column >= value.
func Gte(column string, value any) Filter { return gte{column: column, value: value} }

// Lte matches rows where column <= value.
func Lte(column string, value any) Filter { return lte{column: column, value: value} }

// IsNull matches rows where column is NULL.
func IsNull(column string) Filter { return isNull{column: column} }

// NotNull matches rows where column is not NULL.
func NotNull(column string) Filter { return notNull{column: column} }

// Or groups filters with OR semantics.
func Or(filters ...Filter) Filter { return orGroup{filters: filters} }

// Compile renders filters to a WHERE clause body joined with AND. Placeholder
// numbering starts at startArg so callers can prepend their own bound args.
// An empty filter list compiles to "TRUE".
func Compile(filters []Filter, startArg int) (string, []any) {
	if len(filters) == 0 {
		return "TRUE", nil
	}
	c := &compiler{base: startArg - 1}
	for i, f := range filters {
		if i > 0 {
			c.b.WriteString(" AND ")
		}
		f.append(c)
	}
	return c.b.String(), c.args
}
