// Package catalog defines the venue's fixed seat catalog and seeds it into the seat store.
package catalog

import (
	"context"
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/seat-reservations/internal/domain"
	"github.com/robertarktes/seat-reservations/internal/observability"
)

// Range is an inclusive [from, to] pair.
type Range [2]int

// Block is a rectangular group of seats in one section.
type Block struct {
	Section string `json:"section"`
	Rows    Range  `json:"rows"`
	Cols    Range  `json:"cols"`
}

type Catalog struct {
	Blocks []Block `json:"blocks"`
}

func Default() Catalog {
	return Catalog{Blocks: []Block{
		{Section: "Sofa", Rows: Range{1, 2}, Cols: Range{1, 10}},
		{Section: "Recliner", Rows: Range{1, 4}, Cols: Range{1, 12}},
		{Section: "Standard", Rows: Range{1, 10}, Cols: Range{1, 16}},
	}}
}

// Load reads a catalog file. An empty path yields Default.
func Load(path string) (Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, errors.Wrap(err, "read seat catalog")
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return Catalog{}, errors.Wrapf(err, "parse seat catalog %s", path)
	}
	if _, err := c.Seats(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Seats expands the blocks in order. Overlapping blocks are an error.
func (c Catalog) Seats() ([]domain.SeatID, error) {
	var ids []domain.SeatID
	seen := map[domain.SeatID]struct{}{}
	for _, b := range c.Blocks {
		if b.Rows[0] > b.Rows[1] || b.Cols[0] > b.Cols[1] {
			return nil, domain.Invalid("catalog block %q has an empty range", b.Section)
		}
		for row := b.Rows[0]; row <= b.Rows[1]; row++ {
			for col := b.Cols[0]; col <= b.Cols[1]; col++ {
				id := domain.SeatID{Section: b.Section, Row: row, Col: col}
				if err := id.Validate(); err != nil {
					return nil, err
				}
				if _, dup := seen[id]; dup {
					return nil, domain.Invalid("catalog lists seat %s twice", id)
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

type Store interface {
	SeedCatalog(ctx context.Context, ids []domain.SeatID) (int, error)
}

type Seeder struct {
	store   Store
	catalog Catalog
	logger  observability.Logger
}

func NewSeeder(store Store, catalog Catalog, logger observability.Logger) *Seeder {
	return &Seeder{store: store, catalog: catalog, logger: logger}
}

// Seed inserts missing catalog seats unbooked. Existing seats keep their state, so
// Seed is safe to run on every start.
func (s *Seeder) Seed(ctx context.Context) error {
	ids, err := s.catalog.Seats()
	if err != nil {
		return err
	}
	inserted, err := s.store.SeedCatalog(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "seed seats")
	}
	s.logger.WithField("catalog", len(ids)).WithField("inserted", inserted).Info("seat catalog seeded")
	return nil
}
