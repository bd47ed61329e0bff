package resolver

import (
	"strings"

	"bizreg/internal/importer/models"
)

// LowestLexicographic is the tie-break policy for simultaneous current rows.
// The registry itself does not order them, so the choice is made
// deterministic instead of following storage order:
//
//   - within one organization: the smallest name, the smallest address by
//     (street, building number, municipality, postal code) and the smallest
//     legal form label win; NULL sorts after any value;
//   - across organizations sharing an identifier: the organization whose
//     resolved (name, address, legal form) is smallest wins, then the lowest
//     organization id.
//
// It reports whether a should be kept over b.
func LowestLexicographic(a, b models.Candidate) bool {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c < 0
	}
	if c := compareAddress(a, b); c != 0 {
		return c < 0
	}
	if c := compareNullable(a.LegalForm, b.LegalForm); c != 0 {
		return c < 0
	}
	return a.OrganizationID < b.OrganizationID
}

// preferWithinOrganization picks field by field for one organization, so a
// name is never paired with an address only because of join order.
func preferWithinOrganization(best, c models.Candidate) models.Candidate {
	if c.Name < best.Name {
		best.Name = c.Name
	}
	if compareAddress(c, best) < 0 {
		best.Street = c.Street
		best.BuildingNumber = c.BuildingNumber
		best.Municipality = c.Municipality
		best.PostalCode = c.PostalCode
	}
	if compareNullable(c.LegalForm, best.LegalForm) < 0 {
		best.LegalForm = c.LegalForm
	}
	return best
}

func compareAddress(a, b models.Candidate) int {
	if c := compareNullable(a.Street, b.Street); c != 0 {
		return c
	}
	if c := compareNullable(a.BuildingNumber, b.BuildingNumber); c != 0 {
		return c
	}
	if c := compareNullable(a.Municipality, b.Municipality); c != 0 {
		return c
	}
	return compareNullable(a.PostalCode, b.PostalCode)
}

func compareNullable(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return strings.Compare(*a, *b)
}
