// Package query parses list-endpoint query strings into filters, projection,
// sort order and pagination.
//
// Supported forms:
//
//	status=open                 equality
//	evidence_count[gte]=2       comparison (gt, gte, lt, lte)
//	priority[in]=high,critical  set membership
//	select=title,status         projection
//	sort=-date_opened,title     ordering, "-" for descending
//	page=2&limit=10             pagination
package query

import (
	"encoding/json"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "crimesleuth/internal/errors"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
	// MaxPage keeps (page-1)*limit inside int range on every platform.
	MaxPage = math.MaxInt32 / MaxLimit
)

// Op is a comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

// SQL returns the SQL operator for op.
func (o Op) SQL() string {
	switch o {
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpIn:
		return "IN"
	default:
		return "="
	}
}

// Kind is the value type of a field.
type Kind int

const (
	String Kind = iota
	Int
	Time
)

// Field maps an API field name to a column.
type Field struct {
	Column string
	Kind   Kind
}

// Schema lists the fields a resource exposes to filtering, sorting and projection.
type Schema map[string]Field

// Filter is one parsed condition.
type Filter struct {
	Column string
	Op     Op
	Values []any
}

// SortKey is one ordering term.
type SortKey struct {
	Column string
	Desc   bool
}

// ListQuery is a parsed list request.
type ListQuery struct {
	Filters []Filter
	Select  []string // columns
	Fields  []string // API field names matching Select
	Sort    []SortKey
	Page    int
	Limit   int
}

// Offset returns the number of rows to skip.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

var reserved = map[string]bool{"select": true, "sort": true, "page": true, "limit": true}

// Parse builds a ListQuery from URL values. Every field name must be present
// in schema; unknown fields and malformed values yield validation errors.
func Parse(values url.Values, schema Schema, defaultSort string) (ListQuery, error) {
	q := ListQuery{Page: 1, Limit: DefaultLimit}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if reserved[key] {
			continue
		}
		name, op, err := splitKey(key)
		if err != nil {
			return ListQuery{}, err
		}
		field, ok := schema[name]
		if !ok {
			return ListQuery{}, apperrors.Invalid("unknown filter field %q", name)
		}
		for _, raw := range values[key] {
			parts := []string{raw}
			if op == OpIn {
				parts = strings.Split(raw, ",")
			}
			converted := make([]any, 0, len(parts))
			for _, p := range parts {
				v, err := convert(field.Kind, strings.TrimSpace(p))
				if err != nil {
					return ListQuery{}, apperrors.Invalid("invalid value %q for %s", p, name)
				}
				converted = append(converted, v)
			}
			q.Filters = append(q.Filters, Filter{Column: field.Column, Op: op, Values: converted})
		}
	}

	if sel := values.Get("select"); sel != "" {
		cols := []string{"id"}
		fields := []string{"id"}
		for _, name := range strings.Split(sel, ",") {
			name = strings.TrimSpace(name)
			field, ok := schema[name]
			if !ok {
				return ListQuery{}, apperrors.Invalid("unknown select field %q", name)
			}
			if field.Column != "id" {
				cols = append(cols, field.Column)
				fields = append(fields, name)
			}
		}
		q.Select = cols
		q.Fields = fields
	}

	sortSpec := values.Get("sort")
	if sortSpec == "" {
		sortSpec = defaultSort
	}
	for _, term := range strings.Split(sortSpec, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		desc := strings.HasPrefix(term, "-")
		name := strings.TrimPrefix(term, "-")
		field, ok := schema[name]
		if !ok {
			return ListQuery{}, apperrors.Invalid("unknown sort field %q", name)
		}
		q.Sort = append(q.Sort, SortKey{Column: field.Column, Desc: desc})
	}

	if v := values.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 || page > MaxPage {
			return ListQuery{}, apperrors.Invalid("page must be between 1 and %d", MaxPage)
		}
		q.Page = page
	}
	if v := values.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > MaxLimit {
			return ListQuery{}, apperrors.Invalid("limit must be between 1 and %d", MaxLimit)
		}
		q.Limit = limit
	}

	return q, nil
}

func splitKey(key string) (string, Op, error) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return key, OpEq, nil
	}
	if !strings.HasSuffix(key, "]") {
		return "", "", apperrors.Invalid("malformed filter %q", key)
	}
	op := Op(key[open+1 : len(key)-1])
	switch op {
	case OpGt, OpGte, OpLt, OpLte, OpIn:
		return key[:open], op, nil
	}
	return "", "", apperrors.Invalid("unsupported operator %q", string(op))
}

func convert(kind Kind, raw string) (any, error) {
	switch kind {
	case Int:
		return strconv.Atoi(raw)
	case Time:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t, nil
		}
		return time.Parse("2006-01-02", raw)
	default:
		return raw, nil
	}
}

// PageRef points at a neighbouring page.
type PageRef struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Pagination links the neighbouring pages of a result.
type Pagination struct {
	Next *PageRef `json:"next,omitempty"`
	Prev *PageRef `json:"prev,omitempty"`
}

// Paginate computes neighbouring pages from the total row count taken at query time.
func Paginate(page, limit int, total int64) Pagination {
	var p Pagination
	if int64(page)*int64(limit) < total {
		p.Next = &PageRef{Page: page + 1, Limit: limit}
	}
	if page > 1 {
		p.Prev = &PageRef{Page: page - 1, Limit: limit}
	}
	return p
}

// Project reduces each element of items to the given JSON fields. With no
// fields, items is returned unchanged.
func Project(items any, fields []string) (any, error) {
	if len(fields) == 0 {
		return items, nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	var rows []map[string]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	out := make([]map[string]json.RawMessage, len(rows))
	for i, row := range rows {
		kept := make(map[string]json.RawMessage, len(fields))
		for _, f := range fields {
			if v, ok := row[f]; ok {
				kept[f] = v
			}
		}
		out[i] = kept
	}
	return out, nil
}
