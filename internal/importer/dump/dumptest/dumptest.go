// Package dumptest builds small registry dumps for tests.
package dumptest

import (
	"bytes"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Builder assembles a plain-text dump section by section, using the table
// names and ordinals of dump.DefaultLayout.
type Builder struct {
	b strings.Builder
}

func New() *Builder {
	b := &Builder{}
	b.b.WriteString("--\n-- PostgreSQL database dump\n--\n\nSET statement_timeout = 0;\n\n")
	return b
}

// Section writes a COPY block; each row is a slice of already-escaped fields.
func (b *Builder) Section(table string, rows ...[]string) *Builder {
	b.b.WriteString("COPY " + table + " (cols) FROM stdin;\n")
	for _, r := range rows {
		b.b.WriteString(strings.Join(r, "\t"))
		b.b.WriteByte('\n')
	}
	b.b.WriteString("\\.\n\n")
	return b
}

// Raw appends text verbatim.
func (b *Builder) Raw(s string) *Builder {
	b.b.WriteString(s)
	return b
}

func (b *Builder) Organizations(rows ...[]string) *Builder {
	return b.Section("rpo.organizations", rows...)
}

func (b *Builder) Identifiers(rows ...[]string) *Builder {
	return b.Section("rpo.organization_identifier_entries", rows...)
}

func (b *Builder) Names(rows ...[]string) *Builder {
	return b.Section("rpo.organization_name_entries", rows...)
}

func (b *Builder) Addresses(rows ...[]string) *Builder {
	return b.Section("rpo.organization_address_entries", rows...)
}

func (b *Builder) LegalForms(rows ...[]string) *Builder {
	return b.Section("rpo.organization_legal_form_entries", rows...)
}

func (b *Builder) Catalog(rows ...[]string) *Builder {
	return b.Section("rpo.legal_forms", rows...)
}

func (b *Builder) String() string { return b.b.String() }

// Gzip returns the dump compressed the way the registry publishes it.
func (b *Builder) Gzip() []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(b.String()))
	_ = zw.Close()
	return buf.Bytes()
}

// Address builds an address row with the default ordinals.
func Address(id, org, from, to, street, building, postal, city string) []string {
	return []string{id, org, from, to, `\N`, street, `\N`, building, postal, city, "Slovensko"}
}

// Standard is a small registry with one company per interesting case:
//
//	org 1  "Firma"        id 00000123  active, address, legal form
//	org 2  "Firma Plus"   id 00000456  active
//	org 3  "Firmia"       id 00000789  terminated
//	org 4  no current name (name closed)       -> excluded
//	org 5  no current identifier               -> excluded
//	org 6  "Žilinská stavebná" id 12345678  two current names
func Standard() *Builder {
	return New().
		Organizations(
			[]string{"1", "2001-01-01", `\N`},
			[]string{"2", "2002-01-01", `\N`},
			[]string{"3", "2003-01-01", "2020-06-30"},
			[]string{"4", "2004-01-01", `\N`},
			[]string{"5", "2005-01-01", `\N`},
			[]string{"6", "2006-01-01", `\N`},
		).
		Identifiers(
			[]string{"10", "1", "123", "2001-01-01", `\N`},
			[]string{"11", "2", "00000456", "2002-01-01", `\N`},
			[]string{"12", "3", "789", "2003-01-01", `\N`},
			[]string{"13", "4", "4444", "2004-01-01", `\N`},
			[]string{"14", "5", "5555", "2005-01-01", "2010-01-01"},
			[]string{"15", "6", "12345678", "2006-01-01", `\N`},
		).
		Names(
			[]string{"20", "1", "Firma", "2001-01-01", `\N`},
			[]string{"21", "1", "Stará Firma", "1999-01-01", "2001-01-01"},
			[]string{"22", "2", "Firma Plus", "2002-01-01", `\N`},
			[]string{"23", "3", "Firmia", "2003-01-01", `\N`},
			[]string{"24", "4", "Zaniknutá", "2004-01-01", "2008-01-01"},
			[]string{"25", "5", "Bez IČO", "2005-01-01", `\N`},
			[]string{"26", "6", "Žilinská stavebná", "2006-01-01", `\N`},
			[]string{"27", "6", "Zilinska stavebna B", "2006-01-01", `\N`},
		).
		Addresses(
			Address("30", "1", "2001-01-01", `\N`, "Hlavná", "12", "01001", "Žilina"),
			Address("31", "1", "1999-01-01", "2001-01-01", "Stará", "1", "01001", "Žilina"),
		).
		LegalForms(
			[]string{"40", "1", "112", "2001-01-01", `\N`},
		).
		Catalog(
			[]string{"112", "Spoločnosť s ručením obmedzeným"},
		)
}
