package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvegajr/sqlite-db-odata4-sub000/query"
)

func TestParseQuery_Filter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		raw       string
		wantStr   string
		wantErr   bool
		errSubstr string
	}{
		{
			name:    "simple-compare",
			raw:     "age gt 30",
			wantStr: "(compare age gt 30)",
		},
		{
			name:    "and-or-precedence",
			raw:     "age gt 30 and name eq 'Ada' or active eq true",
			wantStr: "(or (and (compare age gt 30) (compare name eq 'Ada')) (compare active eq true))",
		},
		{
			name:    "not-and-parens",
			raw:     "not (age lt 18)",
			wantStr: "(not (compare age lt 18))",
		},
		{
			name:    "string-predicate",
			raw:     "contains(name, 'ada')",
			wantStr: "(contains name 'ada')",
		},
		{
			name:    "in-list",
			raw:     "status in (1, 2, 3)",
			wantStr: "(in status)",
		},
		{
			name:      "unterminated-paren",
			raw:       "(age gt 30",
			wantErr:   true,
			errSubstr: "missing closing paren",
		},
		{
			name:      "trailing-garbage",
			raw:       "age gt 30 extra",
			wantErr:   true,
			errSubstr: "unexpected trailing token",
		},
		{
			name:      "unknown-operator",
			raw:       "age near 30",
			wantErr:   true,
			errSubstr: "expected comparison operator",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q, err := query.ParseQuery(query.Params{"$filter": tt.raw})
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, q.Filter)
			assert.Equal(t, tt.wantStr, q.Filter.String())
		})
	}
}

func TestParseQuery_TopSkip(t *testing.T) {
	t.Parallel()
	q, err := query.ParseQuery(query.Params{"$top": "10", "$skip": "5"})
	require.NoError(t, err)
	require.NotNil(t, q.Paging.Top)
	require.NotNil(t, q.Paging.Skip)
	assert.Equal(t, 10, *q.Paging.Top)
	assert.Equal(t, 5, *q.Paging.Skip)
}

func TestParseQuery_TopNegative(t *testing.T) {
	t.Parallel()
	_, err := query.ParseQuery(query.Params{"$top": "-1"})
	require.Error(t, err)
}

func TestParseQuery_SelectAndCount(t *testing.T) {
	t.Parallel()
	q, err := query.ParseQuery(query.Params{"$select": "id,name", "$count": "true"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, q.Select)
	require.NotNil(t, q.Count)
	assert.True(t, *q.Count)
}

func TestParseQuery_EmptyParamsIsZeroValue(t *testing.T) {
	t.Parallel()
	q, err := query.ParseQuery(query.Params{})
	require.NoError(t, err)
	assert.Nil(t, q.Filter)
	assert.Nil(t, q.Paging.Top)
	assert.Nil(t, q.Select)
}
