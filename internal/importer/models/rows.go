package models

import "time"

// Kind names a source relation of the registry dump.
type Kind string

const (
	KindOrganization Kind = "organization"
	KindIdentifier   Kind = "identifier"
	KindName         Kind = "name"
	KindAddress      Kind = "address"
	KindLegalForm    Kind = "legal_form"
	KindLegalFormRef Kind = "legal_form_catalog"
)

// Kinds lists every relation in load order.
var Kinds = []Kind{
	KindOrganization,
	KindIdentifier,
	KindName,
	KindAddress,
	KindLegalForm,
	KindLegalFormRef,
}

// Validity is the [From, To) window of a history row. A nil To means the
// row is currently valid.
type Validity struct {
	From *time.Time
	To   *time.Time
}

// Current reports whether the window is still open.
func (v Validity) Current() bool { return v.To == nil }

// Row is a typed staging row.
type Row interface {
	Kind() Kind
}

type Organization struct {
	ID            int64
	EstablishedOn *time.Time
	TerminatedOn  *time.Time
}

type IdentifierEntry struct {
	ID             int64
	OrganizationID int64
	Identifier     string
	Validity
}

type NameEntry struct {
	ID             int64
	OrganizationID int64
	Name           string
	Validity
}

type AddressEntry struct {
	ID             int64
	OrganizationID int64
	Street         *string
	BuildingNumber *string
	Municipality   *string
	PostalCode     *string
	Validity
}

type LegalFormEntry struct {
	ID             int64
	OrganizationID int64
	LegalFormID    int64
	Validity
}

type LegalForm struct {
	ID   int64
	Name string
}

func (Organization) Kind() Kind    { return KindOrganization }
func (IdentifierEntry) Kind() Kind { return KindIdentifier }
func (NameEntry) Kind() Kind       { return KindName }
func (AddressEntry) Kind() Kind    { return KindAddress }
func (LegalFormEntry) Kind() Kind  { return KindLegalForm }
func (LegalForm) Kind() Kind       { return KindLegalFormRef }

// Candidate is one joined row feeding entity resolution: a current identifier
// of an organization together with one current name and, when present, one
// current address and legal form label.
type Candidate struct {
	Identifier     string
	OrganizationID int64
	Name           string
	Street         *string
	BuildingNumber *string
	Municipality   *string
	PostalCode     *string
	LegalForm      *string
	Active         bool
}
