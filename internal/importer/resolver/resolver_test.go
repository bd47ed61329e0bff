package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	company "bizreg/internal/company/models"
	"bizreg/internal/importer/dump"
	"bizreg/internal/importer/dump/dumptest"
	"bizreg/internal/importer/models"
	"bizreg/internal/importer/staging"
)

type ResolverSuite struct {
	suite.Suite
	ctx        context.Context
	logger     *slog.Logger
	importedAt time.Time
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.importedAt = time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
}

func (s *ResolverSuite) stage(b *dumptest.Builder) *staging.MemoryStore {
	store := staging.NewMemoryStore()
	loader := staging.NewLoader(store, 0, s.logger, nil)
	_, err := loader.Load(s.ctx, dump.NewParser(strings.NewReader(b.String()), dump.DefaultLayout()))
	s.Require().NoError(err)
	return store
}

func (s *ResolverSuite) resolve(store Source, batchSize int) ([]company.Company, Stats, error) {
	var out []company.Company
	stats, err := New(batchSize, "", s.logger).Resolve(s.ctx, store, s.importedAt,
		func(_ context.Context, batch []company.Company) error {
			out = append(out, batch...)
			return nil
		})
	return out, stats, err
}

func byIdentifier(cs []company.Company) map[string]company.Company {
	m := make(map[string]company.Company, len(cs))
	for _, c := range cs {
		m[string(c.Identifier)] = c
	}
	return m
}

func (s *ResolverSuite) TestStandardRegistry() {
	out, stats, err := s.resolve(s.stage(dumptest.Standard()), 0)
	s.Require().NoError(err)
	s.Equal(int64(4), stats.Companies)

	got := byIdentifier(out)
	s.Len(got, 4)

	firma := got["00000123"]
	s.Equal("Firma", firma.Name)
	s.Equal("firma", firma.NormalizedName)
	s.Require().NotNil(firma.Street)
	s.Equal("Hlavná 12", *firma.Street)
	s.Require().NotNil(firma.City)
	s.Equal("Žilina", *firma.City)
	s.Require().NotNil(firma.LegalForm)
	s.Equal("Spoločnosť s ručením obmedzeným", *firma.LegalForm)
	s.Equal(company.DefaultCountry, firma.Country)
	s.True(firma.Active)
	s.Equal(s.importedAt, firma.ImportedAt)

	s.Nil(got["00000456"].Street)
	s.Nil(got["00000456"].LegalForm)
	s.False(got["00000789"].Active)

	s.NotContains(got, "00004444", "organization without a current name")
	s.NotContains(got, "00005555", "identifier no longer valid")
}

func (s *ResolverSuite) TestSimultaneousNamesPickLowest() {
	out, _, err := s.resolve(s.stage(dumptest.Standard()), 0)
	s.Require().NoError(err)

	// byte order: "Z" sorts before "Ž"
	s.Equal("Zilinska stavebna B", byIdentifier(out)["12345678"].Name)
}

func (s *ResolverSuite) TestSharedIdentifierKeepsOneOrganization() {
	b := dumptest.New().
		Identifiers(
			[]string{"1", "7", "100", "2001-01-01", `\N`},
			[]string{"2", "3", "100", "2001-01-01", `\N`},
			[]string{"3", "9", "100", "2001-01-01", `\N`},
		).
		Names(
			[]string{"1", "7", "Beta", "2001-01-01", `\N`},
			[]string{"2", "3", "Gama", "2001-01-01", `\N`},
			[]string{"3", "9", "Beta", "2001-01-01", `\N`},
		)

	out, stats, err := s.resolve(s.stage(b), 0)
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal("Beta", out[0].Name)
	s.Equal(int64(1), stats.Duplicates)
}

func (s *ResolverSuite) TestAddressNeverMixedAcrossRows() {
	b := dumptest.New().
		Identifiers([]string{"1", "1", "100", "2001-01-01", `\N`}).
		Names([]string{"1", "1", "Alfa", "2001-01-01", `\N`}).
		Addresses(
			dumptest.Address("1", "1", "2001-01-01", `\N`, "Bratislavská", "9", "81101", "Bratislava"),
			dumptest.Address("2", "1", "2001-01-01", `\N`, "Alejová", "1", "04001", "Košice"),
		)

	out, _, err := s.resolve(s.stage(b), 0)
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal("Alejová 1", *out[0].Street)
	s.Equal("Košice", *out[0].City)
	s.Equal("04001", *out[0].PostalCode)
}

func (s *ResolverSuite) TestIdempotent() {
	store := s.stage(dumptest.Standard())

	first, _, err := s.resolve(store, 0)
	s.Require().NoError(err)
	second, _, err := s.resolve(store, 0)
	s.Require().NoError(err)
	s.Equal(first, second)
}

func (s *ResolverSuite) TestBatchesFlushed() {
	var sizes []int
	_, err := New(3, "", s.logger).Resolve(s.ctx, s.stage(dumptest.Standard()), s.importedAt,
		func(_ context.Context, batch []company.Company) error {
			sizes = append(sizes, len(batch))
			return nil
		})
	s.Require().NoError(err)
	s.Equal([]int{3, 1}, sizes)
}

func (s *ResolverSuite) TestEmptyIdentifiers() {
	b := dumptest.New().Names([]string{"1", "1", "Alfa", "2001-01-01", `\N`})

	_, _, err := s.resolve(s.stage(b), 0)
	s.ErrorIs(err, models.ErrEmptyIdentifiers)
}

func (s *ResolverSuite) TestEmptyResolution() {
	b := dumptest.New().
		Identifiers([]string{"1", "1", "100", "2001-01-01", `\N`}).
		Names([]string{"1", "1", "Alfa", "2001-01-01", "2002-01-01"})

	_, _, err := s.resolve(s.stage(b), 0)
	s.ErrorIs(err, models.ErrEmptyResolution)
}

func (s *ResolverSuite) TestSinkErrorStops() {
	boom := errors.New("boom")
	_, err := New(1, "", s.logger).Resolve(s.ctx, s.stage(dumptest.Standard()), s.importedAt,
		func(context.Context, []company.Company) error { return boom })
	s.ErrorIs(err, boom)
}
