package staging

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bizreg/internal/importer/models"
	"bizreg/pkg/platform/sentinel"
)

// MemoryStore keeps staging relations in process memory. It backs the
// database-less mode and tests.
type MemoryStore struct {
	mu sync.RWMutex

	runMu   sync.Mutex
	running bool

	orgs        map[int64]models.Organization
	identifiers []models.IdentifierEntry
	names       []models.NameEntry
	addresses   []models.AddressEntry
	legalForms  []models.LegalFormEntry
	catalog     map[int64]string

	indexed       bool
	namesByOrg    map[int64][]models.NameEntry
	addressByOrg  map[int64][]models.AddressEntry
	legalFormsOrg map[int64][]models.LegalFormEntry
}

// NewMemoryStore creates an empty in-memory staging store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.clear()
	return s
}

func (s *MemoryStore) clear() {
	s.orgs = make(map[int64]models.Organization)
	s.identifiers = nil
	s.names = nil
	s.addresses = nil
	s.legalForms = nil
	s.catalog = make(map[int64]string)
	s.indexed = false
	s.namesByOrg = nil
	s.addressByOrg = nil
	s.legalFormsOrg = nil
}

// Acquire holds the run lock of this store; runs sharing the store are
// serialized the way processes sharing a database are.
func (s *MemoryStore) Acquire(_ context.Context) (func(), error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil, models.ErrAlreadyRunning
	}
	s.running = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.runMu.Lock()
			s.running = false
			s.runMu.Unlock()
		})
	}, nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
	return nil
}

func (s *MemoryStore) Drop(ctx context.Context) error {
	return s.Reset(ctx)
}

func (s *MemoryStore) Insert(_ context.Context, kind models.Kind, rows []models.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexed = false

	for _, row := range rows {
		if row.Kind() != kind {
			return fmt.Errorf("row of kind %s in %s batch", row.Kind(), kind)
		}
		switch r := row.(type) {
		case models.Organization:
			s.orgs[r.ID] = r
		case models.IdentifierEntry:
			s.identifiers = append(s.identifiers, r)
		case models.NameEntry:
			s.names = append(s.names, r)
		case models.AddressEntry:
			s.addresses = append(s.addresses, r)
		case models.LegalFormEntry:
			s.legalForms = append(s.legalForms, r)
		case models.LegalForm:
			s.catalog[r.ID] = r.Name
		default:
			return fmt.Errorf("unsupported row type %T", row)
		}
	}
	return nil
}

// BuildIndexes groups currently-valid satellite rows by organization.
func (s *MemoryStore) BuildIndexes(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.namesByOrg = make(map[int64][]models.NameEntry)
	for _, n := range s.names {
		if n.Current() {
			s.namesByOrg[n.OrganizationID] = append(s.namesByOrg[n.OrganizationID], n)
		}
	}
	s.addressByOrg = make(map[int64][]models.AddressEntry)
	for _, a := range s.addresses {
		if a.Current() {
			s.addressByOrg[a.OrganizationID] = append(s.addressByOrg[a.OrganizationID], a)
		}
	}
	s.legalFormsOrg = make(map[int64][]models.LegalFormEntry)
	for _, l := range s.legalForms {
		if l.Current() {
			s.legalFormsOrg[l.OrganizationID] = append(s.legalFormsOrg[l.OrganizationID], l)
		}
	}
	s.indexed = true
	return nil
}

func (s *MemoryStore) CountIdentifiers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.identifiers)), nil
}

// Candidates produces the same rows as the SQL join of the Postgres store:
// names are inner-joined, addresses and legal forms left-joined.
func (s *MemoryStore) Candidates(ctx context.Context, fn func(models.Candidate) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.indexed {
		return fmt.Errorf("staging indexes not built: %w", sentinel.ErrInvalidState)
	}

	current := make([]models.IdentifierEntry, 0, len(s.identifiers))
	for _, e := range s.identifiers {
		if e.Current() {
			current = append(current, e)
		}
	}
	sort.Slice(current, func(i, j int) bool {
		if current[i].Identifier != current[j].Identifier {
			return current[i].Identifier < current[j].Identifier
		}
		return current[i].OrganizationID < current[j].OrganizationID
	})

	for _, e := range current {
		if err := ctx.Err(); err != nil {
			return err
		}
		org, known := s.orgs[e.OrganizationID]
		active := !known || org.TerminatedOn == nil

		addresses := s.addressByOrg[e.OrganizationID]
		if len(addresses) == 0 {
			addresses = []models.AddressEntry{{}}
		}
		forms := s.legalFormsOrg[e.OrganizationID]
		labels := make([]*string, 0, len(forms))
		for _, f := range forms {
			if name, ok := s.catalog[f.LegalFormID]; ok {
				labels = append(labels, &name)
			} else {
				labels = append(labels, nil)
			}
		}
		if len(labels) == 0 {
			labels = []*string{nil}
		}

		for _, n := range s.namesByOrg[e.OrganizationID] {
			for _, a := range addresses {
				for _, label := range labels {
					c := models.Candidate{
						Identifier:     e.Identifier,
						OrganizationID: e.OrganizationID,
						Name:           n.Name,
						Street:         a.Street,
						BuildingNumber: a.BuildingNumber,
						Municipality:   a.Municipality,
						PostalCode:     a.PostalCode,
						LegalForm:      label,
						Active:         active,
					}
					if err := fn(c); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
