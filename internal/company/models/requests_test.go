package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "bizreg/pkg/domain-errors"
)

func TestParseSearchRequest(t *testing.T) {
	tests := []struct {
		name     string
		q        string
		limit    string
		inactive string
		want     SearchRequest
		wantErr  string
	}{
		{name: "minimal", q: "ab", want: SearchRequest{Query: "ab"}},
		{name: "trimmed", q: "  firma  ", limit: "5", inactive: "true", want: SearchRequest{Query: "firma", Limit: 5, IncludeInactive: true}},
		{name: "counts runes", q: "žľ", want: SearchRequest{Query: "žľ"}},
		{name: "too short after trim", q: "  a ", wantErr: "between 2 and 100"},
		{name: "missing", q: "", wantErr: "between 2 and 100"},
		{name: "too long", q: strings.Repeat("x", 101), wantErr: "between 2 and 100"},
		{name: "bad limit", q: "firma", limit: "many", wantErr: "integer"},
		{name: "negative limit", q: "firma", limit: "-1", wantErr: "negative"},
		{name: "bad flag", q: "firma", inactive: "perhaps", wantErr: "boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSearchRequest(tt.q, tt.limit, tt.inactive)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
