package dump

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"bizreg/internal/importer/models"
)

// Column names used in a Layout. Each relation kind requires a fixed subset.
const (
	ColID             = "id"
	ColOrganizationID = "organization_id"
	ColIdentifier     = "identifier"
	ColName           = "name"
	ColLegalFormID    = "legal_form_id"
	ColEffectiveFrom  = "effective_from"
	ColEffectiveTo    = "effective_to"
	ColEstablishedOn  = "established_on"
	ColTerminatedOn   = "terminated_on"
	ColStreet         = "street"
	ColBuildingNumber = "building_number"
	ColMunicipality   = "municipality"
	ColPostalCode     = "postal_code"
)

var requiredColumns = map[models.Kind][]string{
	models.KindOrganization: {ColID, ColEstablishedOn, ColTerminatedOn},
	models.KindIdentifier:   {ColID, ColOrganizationID, ColIdentifier, ColEffectiveFrom, ColEffectiveTo},
	models.KindName:         {ColID, ColOrganizationID, ColName, ColEffectiveFrom, ColEffectiveTo},
	models.KindAddress: {ColID, ColOrganizationID, ColEffectiveFrom, ColEffectiveTo,
		ColStreet, ColBuildingNumber, ColMunicipality, ColPostalCode},
	models.KindLegalForm:    {ColID, ColOrganizationID, ColLegalFormID, ColEffectiveFrom, ColEffectiveTo},
	models.KindLegalFormRef: {ColID, ColName},
}

// Relation maps one dump table onto a relation kind by fixed column ordinals.
type Relation struct {
	Kind    models.Kind    `yaml:"kind"`
	Columns map[string]int `yaml:"columns"`
}

// Layout is the column-position table for every recognized dump table, keyed
// by the qualified table name as it appears in the COPY header. A change in
// the source schema is an edit here, never auto-detected.
type Layout struct {
	Relations map[string]Relation `yaml:"relations"`
}

// DefaultLayout documents the ordinals of the current registry dump.
//
//	table                                   kind                ordinals
//	rpo.organizations                       organization        id=0 established_on=1 terminated_on=2
//	rpo.organization_identifier_entries     identifier          id=0 organization_id=1 identifier=2 effective_from=3 effective_to=4
//	rpo.organization_name_entries           name                id=0 organization_id=1 name=2 effective_from=3 effective_to=4
//	rpo.organization_address_entries        address             id=0 organization_id=1 effective_from=2 effective_to=3
//	                                                            street=5 building_number=7 postal_code=8 municipality=9
//	rpo.organization_legal_form_entries     legal_form          id=0 organization_id=1 legal_form_id=2 effective_from=3 effective_to=4
//	rpo.legal_forms                         legal_form_catalog  id=0 name=1
func DefaultLayout() Layout {
	return Layout{Relations: map[string]Relation{
		"rpo.organizations": {Kind: models.KindOrganization, Columns: map[string]int{
			ColID: 0, ColEstablishedOn: 1, ColTerminatedOn: 2,
		}},
		"rpo.organization_identifier_entries": {Kind: models.KindIdentifier, Columns: map[string]int{
			ColID: 0, ColOrganizationID: 1, ColIdentifier: 2, ColEffectiveFrom: 3, ColEffectiveTo: 4,
		}},
		"rpo.organization_name_entries": {Kind: models.KindName, Columns: map[string]int{
			ColID: 0, ColOrganizationID: 1, ColName: 2, ColEffectiveFrom: 3, ColEffectiveTo: 4,
		}},
		"rpo.organization_address_entries": {Kind: models.KindAddress, Columns: map[string]int{
			ColID: 0, ColOrganizationID: 1, ColEffectiveFrom: 2, ColEffectiveTo: 3,
			ColStreet: 5, ColBuildingNumber: 7, ColPostalCode: 8, ColMunicipality: 9,
		}},
		"rpo.organization_legal_form_entries": {Kind: models.KindLegalForm, Columns: map[string]int{
			ColID: 0, ColOrganizationID: 1, ColLegalFormID: 2, ColEffectiveFrom: 3, ColEffectiveTo: 4,
		}},
		"rpo.legal_forms": {Kind: models.KindLegalFormRef, Columns: map[string]int{
			ColID: 0, ColName: 1,
		}},
	}}
}

// LoadLayout reads a YAML layout file.
func LoadLayout(path string) (Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read layout: %w", err)
	}
	var l Layout
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return Layout{}, fmt.Errorf("decode layout: %w", err)
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Validate checks that every relation names a known kind and all columns that
// kind needs, with non-negative ordinals.
func (l Layout) Validate() error {
	if len(l.Relations) == 0 {
		return fmt.Errorf("layout has no relations")
	}
	for table, rel := range l.Relations {
		required, ok := requiredColumns[rel.Kind]
		if !ok {
			return fmt.Errorf("layout table %s: unknown kind %q", table, rel.Kind)
		}
		for _, col := range required {
			pos, ok := rel.Columns[col]
			if !ok {
				return fmt.Errorf("layout table %s: missing column %q", table, col)
			}
			if pos < 0 {
				return fmt.Errorf("layout table %s: column %q has negative ordinal", table, col)
			}
		}
	}
	return nil
}

// plan is a Relation resolved to direct ordinals for the hot parse loop.
type plan struct {
	kind      models.Kind
	minFields int
	cols      map[string]int
}

func (l Layout) compile() map[string]*plan {
	plans := make(map[string]*plan, len(l.Relations))
	for table, rel := range l.Relations {
		p := &plan{kind: rel.Kind, cols: rel.Columns}
		for _, col := range requiredColumns[rel.Kind] {
			if rel.Columns[col]+1 > p.minFields {
				p.minFields = rel.Columns[col] + 1
			}
		}
		plans[table] = p
	}
	return plans
}
