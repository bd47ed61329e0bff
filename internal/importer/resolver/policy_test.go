package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bizreg/internal/importer/models"
)

func ptr(s string) *string { return &s }

func TestLowestLexicographic(t *testing.T) {
	tests := []struct {
		name string
		a, b models.Candidate
		want bool
	}{
		{
			name: "name decides first",
			a:    models.Candidate{Name: "Alfa", OrganizationID: 9},
			b:    models.Candidate{Name: "Beta", OrganizationID: 1},
			want: true,
		},
		{
			name: "null street sorts last",
			a:    models.Candidate{Name: "Alfa", Street: nil},
			b:    models.Candidate{Name: "Alfa", Street: ptr("Zelená")},
			want: false,
		},
		{
			name: "legal form breaks address tie",
			a:    models.Candidate{Name: "Alfa", LegalForm: ptr("a.s.")},
			b:    models.Candidate{Name: "Alfa", LegalForm: ptr("s.r.o.")},
			want: true,
		},
		{
			name: "organization id is the last resort",
			a:    models.Candidate{Name: "Alfa", OrganizationID: 2},
			b:    models.Candidate{Name: "Alfa", OrganizationID: 1},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LowestLexicographic(tt.a, tt.b))
		})
	}
}

func TestPreferWithinOrganization(t *testing.T) {
	best := models.Candidate{Name: "Beta", Street: ptr("B"), Municipality: ptr("X")}
	c := models.Candidate{Name: "Alfa", Street: ptr("A"), Municipality: nil}

	got := preferWithinOrganization(best, c)
	assert.Equal(t, "Alfa", got.Name)
	assert.Equal(t, "A", *got.Street)
	assert.Nil(t, got.Municipality, "address fields move as one row")
}
