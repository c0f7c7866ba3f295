package query

import (
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "crimesleuth/internal/errors"
)

var testSchema = Schema{
	"id":             {Column: "id"},
	"status":         {Column: "status"},
	"priority":       {Column: "priority"},
	"title":          {Column: "title"},
	"evidence_count": {Column: "evidence_count", Kind: Int},
	"date_opened":    {Column: "date_opened", Kind: Time},
}

func TestParse_Defaults(t *testing.T) {
	q, err := Parse(url.Values{}, testSchema, "-date_opened")
	require.NoError(t, err)

	assert.Empty(t, q.Filters)
	assert.Nil(t, q.Select)
	assert.Equal(t, []SortKey{{Column: "date_opened", Desc: true}}, q.Sort)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, DefaultLimit, q.Limit)
	assert.Equal(t, 0, q.Offset())
}

func TestParse_Filters(t *testing.T) {
	values, err := url.ParseQuery("status=open&priority[in]=high,critical&evidence_count[gte]=2&date_opened[lt]=2024-01-31")
	require.NoError(t, err)

	q, err := Parse(values, testSchema, "")
	require.NoError(t, err)
	require.Len(t, q.Filters, 4)

	// keys are processed in sorted order
	assert.Equal(t, Filter{Column: "date_opened", Op: OpLt, Values: []any{time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)}}, q.Filters[0])
	assert.Equal(t, Filter{Column: "evidence_count", Op: OpGte, Values: []any{2}}, q.Filters[1])
	assert.Equal(t, Filter{Column: "priority", Op: OpIn, Values: []any{"high", "critical"}}, q.Filters[2])
	assert.Equal(t, Filter{Column: "status", Op: OpEq, Values: []any{"open"}}, q.Filters[3])
}

func TestParse_SelectSortPage(t *testing.T) {
	values, err := url.ParseQuery("select=title,status&sort=-priority,title&page=3&limit=10")
	require.NoError(t, err)

	q, err := Parse(values, testSchema, "-date_opened")
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "title", "status"}, q.Select)
	assert.Equal(t, []string{"id", "title", "status"}, q.Fields)
	assert.Equal(t, []SortKey{{Column: "priority", Desc: true}, {Column: "title"}}, q.Sort)
	assert.Equal(t, 3, q.Page)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 20, q.Offset())
}

func TestParse_LastPageOffset(t *testing.T) {
	values := url.Values{"page": {strconv.Itoa(MaxPage)}, "limit": {strconv.Itoa(MaxLimit)}}

	q, err := Parse(values, testSchema, "")
	require.NoError(t, err)
	assert.Equal(t, (MaxPage-1)*MaxLimit, q.Offset())
	assert.Positive(t, q.Offset())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"unknown field", "password_hash=x"},
		{"unknown operator", "evidence_count[ne]=1"},
		{"malformed key", "evidence_count[gte=1"},
		{"bad int", "evidence_count[gt]=many"},
		{"bad time", "date_opened[gt]=yesterday"},
		{"unknown sort", "sort=secret"},
		{"unknown select", "select=secret"},
		{"bad page", "page=0"},
		{"page overflows offset", "page=9223372036854775807&limit=2"},
		{"page above max", "page=21474837"},
		{"limit too large", "limit=1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			_, err = Parse(values, testSchema, "")
			require.Error(t, err)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
			var appErr *apperrors.Error
			assert.True(t, errors.As(err, &appErr))
		})
	}
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name     string
		page     int
		limit    int
		total    int64
		wantNext *PageRef
		wantPrev *PageRef
	}{
		{"single page", 1, 10, 5, nil, nil},
		{"first of many", 1, 10, 25, &PageRef{Page: 2, Limit: 10}, nil},
		{"middle", 2, 10, 25, &PageRef{Page: 3, Limit: 10}, &PageRef{Page: 1, Limit: 10}},
		{"last exact", 3, 10, 30, nil, &PageRef{Page: 2, Limit: 10}},
		{"empty", 1, 10, 0, nil, nil},
		{"far past the end", MaxPage, MaxLimit, 3, nil, &PageRef{Page: MaxPage - 1, Limit: MaxLimit}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paginate(tt.page, tt.limit, tt.total)
			assert.Equal(t, tt.wantNext, p.Next)
			assert.Equal(t, tt.wantPrev, p.Prev)
		})
	}
}

func TestProject(t *testing.T) {
	type row struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Secret string `json:"secret"`
	}
	items := []row{{ID: "1", Title: "Burglary", Secret: "x"}}

	same, err := Project(items, nil)
	require.NoError(t, err)
	assert.Equal(t, items, same)

	projected, err := Project(items, []string{"id", "title"})
	require.NoError(t, err)
	data, err := json.Marshal(projected)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1","title":"Burglary"}]`, string(data))
}
