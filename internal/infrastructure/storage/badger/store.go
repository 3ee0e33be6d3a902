// Package badger provides an embedded key-value store for running without PostgreSQL:
// products, machines and the visit journal are JSON documents keyed by id.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"

	"vendstock/internal/core/apperror"
	"vendstock/internal/core/id"
	"vendstock/internal/domain/machine"
	"vendstock/internal/domain/product"
	"vendstock/internal/domain/restock"
)

const (
	prefixProduct = "product:"
	prefixMachine = "machine:"
	prefixVisit   = "visit:"
)

// Store wraps a badger database.
type Store struct {
	db *badgerdb.DB
}

// Open opens (or creates) a store in dir.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(filepath.Clean(dir))
	opts.Logger = nil
	opts = opts.WithValueLogFileSize(1 << 24)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store that lives only in memory.
func OpenInMemory() (*Store, error) {
	opts := badgerdb.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is still open.
func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return nil
}

// Products returns the product repository view of the store.
func (s *Store) Products() *ProductStore { return &ProductStore{db: s.db} }

// Machines returns the machine repository view of the store.
func (s *Store) Machines() *MachineStore { return &MachineStore{db: s.db} }

// Journal returns the visit journal view of the store.
func (s *Store) Journal() *JournalStore { return &JournalStore{db: s.db} }

func key(prefix string, id id.ID) []byte {
	return []byte(prefix + id.String())
}

// getJSON loads key into out; a missing key yields NOT_FOUND for entity.
func getJSON(txn *badgerdb.Txn, k []byte, entity string, out any) error {
	item, err := txn.Get(k)
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return apperror.NewNotFound(entity, strings.SplitN(string(k), ":", 2)[1])
		}
		return err
	}
	return item.Value(func(v []byte) error {
		return json.Unmarshal(v, out)
	})
}

func setJSON(txn *badgerdb.Txn, k []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(k, data)
}

// scan calls fn with every value under prefix.
func scan(txn *badgerdb.Txn, prefix string, fn func(v []byte) error) error {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// ProductStore implements product.Repository.
type ProductStore struct {
	db *badgerdb.DB
}

var _ product.Repository = (*ProductStore)(nil)

func (s *ProductStore) Create(_ context.Context, p *product.Product) error {
	p.EnsureID()
	return s.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(key(prefixProduct, p.ID)); err == nil {
			return apperror.NewConflict("product already exists").WithDetail("id", p.ID.String())
		}
		return setJSON(txn, key(prefixProduct, p.ID), p)
	})
}

func (s *ProductStore) Update(_ context.Context, p *product.Product) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		var cur product.Product
		if err := getJSON(txn, key(prefixProduct, p.ID), "products", &cur); err != nil {
			return err
		}
		if cur.Version != p.Version {
			return apperror.NewConcurrentModification("products", p.ID.String())
		}
		next := *p
		next.Touch()
		if err := setJSON(txn, key(prefixProduct, p.ID), &next); err != nil {
			return err
		}
		p.Touch()
		return nil
	})
}

func (s *ProductStore) GetByID(_ context.Context, productID id.ID) (*product.Product, error) {
	var out product.Product
	err := s.db.View(func(txn *badgerdb.Txn) error {
		return getJSON(txn, key(prefixProduct, productID), "products", &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ProductStore) List(_ context.Context, filter product.ListFilter) ([]*product.Product, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var out []*product.Product
	err := s.db.View(func(txn *badgerdb.Txn) error {
		return scan(txn, prefixProduct, func(v []byte) error {
			var p product.Product
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if filter.ActiveOnly && !p.Active {
				return nil
			}
			if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
				return nil
			}
			out = append(out, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, filter.Limit, filter.Offset), nil
}

// MachineStore implements machine.Repository.
type MachineStore struct {
	db *badgerdb.DB
}

var _ machine.Repository = (*MachineStore)(nil)

// Save upserts the machine document. An existing document is replaced only at the caller's version.
func (s *MachineStore) Save(_ context.Context, m *machine.Machine) error {
	m.EnsureID()
	return s.db.Update(func(txn *badgerdb.Txn) error {
		var cur machine.Machine
		err := getJSON(txn, key(prefixMachine, m.ID), "machines", &cur)
		switch {
		case err == nil:
			if cur.Version != m.Version {
				return apperror.NewConcurrentModification("machines", m.ID.String())
			}
			m.Touch()
		case apperror.IsNotFound(err):
		default:
			return err
		}
		return setJSON(txn, key(prefixMachine, m.ID), m)
	})
}

func (s *MachineStore) GetByID(_ context.Context, machineID id.ID) (*machine.Machine, error) {
	var out machine.Machine
	err := s.db.View(func(txn *badgerdb.Txn) error {
		return getJSON(txn, key(prefixMachine, machineID), "machines", &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns machines ordered by next visit.
func (s *MachineStore) List(_ context.Context, filter machine.ListFilter) ([]*machine.Machine, error) {
	var out []*machine.Machine
	err := s.db.View(func(txn *badgerdb.Txn) error {
		return scan(txn, prefixMachine, func(v []byte) error {
			var m machine.Machine
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if filter.ActiveOnly && !m.Active() {
				return nil
			}
			if !filter.DueBy.IsZero() && m.NextVisit().After(filter.DueBy) {
				return nil
			}
			out = append(out, &m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].NextVisit().Before(out[j].NextVisit()) })
	return page(out, filter.Limit, filter.Offset), nil
}

// JournalStore implements restock.Journal.
type JournalStore struct {
	db *badgerdb.DB
}

var _ restock.Journal = (*JournalStore)(nil)

// RecordVisit stores v under visit:<machine>:<number>.
func (s *JournalStore) RecordVisit(_ context.Context, v *restock.Visit) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return setJSON(txn, []byte(prefixVisit+v.MachineID.String()+":"+v.Number), v)
	})
}

// Visits returns the journaled visits of a machine, oldest first.
func (s *JournalStore) Visits(_ context.Context, machineID id.ID) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := s.db.View(func(txn *badgerdb.Txn) error {
		return scan(txn, prefixVisit+machineID.String()+":", func(v []byte) error {
			out = append(out, append(json.RawMessage(nil), v...))
			return nil
		})
	})
	return out, err
}
