// Package dump streams a plain-text PostgreSQL dump of the business registry
// into typed staging rows. Only COPY sections named in the Layout are decoded;
// everything else is read past without being retained.
package dump

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"bizreg/internal/importer/models"
	"bizreg/pkg/domain"
)

const (
	copyPrefix   = "COPY "
	sectionEnd   = `\.`
	dateLayout   = "2006-01-02"
	readBufBytes = 64 << 10
	// maxLineBytes caps one retained line. Longer lines are discarded and
	// counted as malformed.
	maxLineBytes = 4 << 20
)

var errMalformed = errors.New("malformed row")

// Record is one decoded row together with its position in the dump.
type Record struct {
	Kind models.Kind
	Line int64
	Row  models.Row
}

// Stats counts what the parser saw.
type Stats struct {
	Lines    int64
	Sections int
	Rows     map[models.Kind]int64
	Skipped  map[models.Kind]int64
}

// TotalSkipped sums malformed lines over all kinds.
func (s Stats) TotalSkipped() int64 {
	var n int64
	for _, v := range s.Skipped {
		n += v
	}
	return n
}

// Parser yields Records lazily, in the style of bufio.Scanner:
//
//	for p.Next() {
//		rec := p.Record()
//	}
//	if err := p.Err(); err != nil { ... }
type Parser struct {
	r         *bufio.Reader
	line      []byte
	plans     map[string]*plan
	current   *plan
	inSection bool
	rec       Record
	err       error
	stats     Stats
}

// NewParser reads the dump from r using the given layout.
func NewParser(r io.Reader, layout Layout) *Parser {
	return &Parser{
		r:     bufio.NewReaderSize(r, readBufBytes),
		plans: layout.compile(),
		stats: Stats{
			Rows:    make(map[models.Kind]int64),
			Skipped: make(map[models.Kind]int64),
		},
	}
}

// Next advances to the next decodable row. It returns false at end of input
// or on a read error.
func (p *Parser) Next() bool {
	if p.err != nil {
		return false
	}
	for {
		line, oversized, err := p.readLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.err = fmt.Errorf("read dump line %d: %w", p.stats.Lines+1, err)
			}
			return false
		}
		p.stats.Lines++

		if oversized {
			if p.inSection && p.current != nil {
				p.stats.Skipped[p.current.kind]++
			}
			continue
		}
		if !p.inSection {
			if strings.HasPrefix(line, copyPrefix) {
				p.inSection = true
				p.current = p.plans[tableName(line)]
				if p.current != nil {
					p.stats.Sections++
				}
			}
			continue
		}
		if line == sectionEnd {
			p.inSection = false
			p.current = nil
			continue
		}
		if p.current == nil {
			continue
		}

		row, err := p.current.decode(line)
		if err != nil {
			p.stats.Skipped[p.current.kind]++
			continue
		}
		p.stats.Rows[p.current.kind]++
		p.rec = Record{Kind: p.current.kind, Line: p.stats.Lines, Row: row}
		return true
	}
}

// readLine returns the next line without its terminator. A line longer than
// maxLineBytes is read to its end but not retained; oversized reports it.
func (p *Parser) readLine() (line string, oversized bool, err error) {
	p.line = p.line[:0]
	for {
		chunk, err := p.r.ReadSlice('\n')
		if !oversized {
			if len(p.line)+len(chunk) > maxLineBytes {
				oversized = true
				p.line = p.line[:0]
			} else {
				p.line = append(p.line, chunk...)
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(p.line) == 0 && !oversized {
				return "", false, io.EOF
			}
		default:
			return "", false, err
		}
		return string(trimEOL(p.line)), oversized, nil
	}
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte{'\n'})
	return bytes.TrimSuffix(b, []byte{'\r'})
}

// Record returns the row produced by the last successful Next.
func (p *Parser) Record() Record { return p.rec }

// Err returns the first read error, if any. Malformed rows are not errors.
func (p *Parser) Err() error { return p.err }

// Stats returns a snapshot of the counters.
func (p *Parser) Stats() Stats {
	out := Stats{
		Lines:    p.stats.Lines,
		Sections: p.stats.Sections,
		Rows:     make(map[models.Kind]int64, len(p.stats.Rows)),
		Skipped:  make(map[models.Kind]int64, len(p.stats.Skipped)),
	}
	for k, v := range p.stats.Rows {
		out.Rows[k] = v
	}
	for k, v := range p.stats.Skipped {
		out.Skipped[k] = v
	}
	return out
}

// tableName extracts the qualified table from `COPY schema.table (cols) FROM stdin;`.
func tableName(line string) string {
	rest := strings.TrimPrefix(line, copyPrefix)
	if i := strings.IndexAny(rest, " ("); i >= 0 {
		rest = rest[:i]
	}
	return strings.ReplaceAll(rest, `"`, "")
}

// fields gives typed access to the columns a plan needs from one split line.
type fields struct {
	raw  []string
	cols map[string]int
	err  error
}

func (f *fields) str(col string) (string, bool) {
	if f.err != nil {
		return "", true
	}
	v, null, err := decodeField(f.raw[f.cols[col]])
	if err != nil {
		f.err = err
	}
	return v, null
}

func (f *fields) required(col string) string {
	v, null := f.str(col)
	if null && f.err == nil {
		f.err = fmt.Errorf("%w: %s is null", errMalformed, col)
	}
	return v
}

func (f *fields) optional(col string) *string {
	v, null := f.str(col)
	if null || f.err != nil {
		return nil
	}
	return &v
}

func (f *fields) integer(col string) int64 {
	v := f.required(col)
	if f.err != nil {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		f.err = fmt.Errorf("%w: %s: %v", errMalformed, col, err)
	}
	return n
}

func (f *fields) date(col string) *time.Time {
	v := f.optional(col)
	if v == nil || f.err != nil {
		return nil
	}
	if len(*v) < len(dateLayout) {
		f.err = fmt.Errorf("%w: %s: short date", errMalformed, col)
		return nil
	}
	t, err := time.Parse(dateLayout, (*v)[:len(dateLayout)])
	if err != nil {
		f.err = fmt.Errorf("%w: %s: %v", errMalformed, col, err)
		return nil
	}
	return &t
}

func (f *fields) validity() models.Validity {
	return models.Validity{From: f.date(ColEffectiveFrom), To: f.date(ColEffectiveTo)}
}

func (p *plan) decode(line string) (models.Row, error) {
	raw := strings.Split(line, "\t")
	if len(raw) < p.minFields {
		return nil, fmt.Errorf("%w: %d fields, need %d", errMalformed, len(raw), p.minFields)
	}
	f := &fields{raw: raw, cols: p.cols}

	var row models.Row
	switch p.kind {
	case models.KindOrganization:
		row = models.Organization{
			ID:            f.integer(ColID),
			EstablishedOn: f.date(ColEstablishedOn),
			TerminatedOn:  f.date(ColTerminatedOn),
		}
	case models.KindIdentifier:
		e := models.IdentifierEntry{
			ID:             f.integer(ColID),
			OrganizationID: f.integer(ColOrganizationID),
			Validity:       f.validity(),
		}
		raw := f.required(ColIdentifier)
		if f.err == nil {
			id, err := domain.ParseIdentifier(raw)
			if err != nil {
				f.err = fmt.Errorf("%w: %v", errMalformed, err)
			}
			e.Identifier = id.String()
		}
		row = e
	case models.KindName:
		e := models.NameEntry{
			ID:             f.integer(ColID),
			OrganizationID: f.integer(ColOrganizationID),
			Name:           strings.TrimSpace(f.required(ColName)),
			Validity:       f.validity(),
		}
		if f.err == nil && e.Name == "" {
			f.err = fmt.Errorf("%w: blank name", errMalformed)
		}
		row = e
	case models.KindAddress:
		row = models.AddressEntry{
			ID:             f.integer(ColID),
			OrganizationID: f.integer(ColOrganizationID),
			Street:         f.optional(ColStreet),
			BuildingNumber: f.optional(ColBuildingNumber),
			Municipality:   f.optional(ColMunicipality),
			PostalCode:     f.optional(ColPostalCode),
			Validity:       f.validity(),
		}
	case models.KindLegalForm:
		row = models.LegalFormEntry{
			ID:             f.integer(ColID),
			OrganizationID: f.integer(ColOrganizationID),
			LegalFormID:    f.integer(ColLegalFormID),
			Validity:       f.validity(),
		}
	case models.KindLegalFormRef:
		row = models.LegalForm{
			ID:   f.integer(ColID),
			Name: f.required(ColName),
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", errMalformed, p.kind)
	}
	if f.err != nil {
		return nil, f.err
	}
	return row, nil
}
