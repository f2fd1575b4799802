package region

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Catalog is a local SQLite store of administrative region boundaries and
// properties, loaded once per generation run by `streetgen regions load`.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens (or creates) a region catalog at the given path and
// configures WAL mode.
func OpenCatalog(dsn string) (*Catalog, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "region: open catalog")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			_ = sqlDB.Close()
			return nil, eris.Wrapf(err, "region: exec %s", pragma)
		}
	}
	return &Catalog{db: sqlDB}, nil
}

const catalogMigration = `
CREATE TABLE IF NOT EXISTS regions (
	id         INTEGER PRIMARY KEY,
	admin_rank INTEGER NOT NULL DEFAULT 0,
	properties TEXT NOT NULL,
	ring       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_regions_rank ON regions(admin_rank);
`

// Migrate creates the catalog schema.
func (c *Catalog) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, catalogMigration)
	return eris.Wrap(err, "region: migrate catalog")
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Insert stores one region boundary with its properties.
func (c *Catalog) Insert(ctx context.Context, id uint64, props Properties, ring []geom.Coord) error {
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return eris.Wrapf(err, "region: encode properties of %d", id)
	}
	ringJSON, err := json.Marshal(ring)
	if err != nil {
		return eris.Wrapf(err, "region: encode ring of %d", id)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO regions (id, admin_rank, properties, ring)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			admin_rank = excluded.admin_rank,
			properties = excluded.properties,
			ring       = excluded.ring`,
		int64(id), props.Rank, string(propsJSON), string(ringJSON),
	)
	return eris.Wrapf(err, "region: insert region %d", id)
}

// Region implements Getter.
func (c *Catalog) Region(ctx context.Context, id uint64) (*Ref, error) {
	var props string
	err := c.db.QueryRowContext(ctx, `SELECT properties FROM regions WHERE id = ?`, int64(id)).Scan(&props)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "region: get region %d", id)
	}
	ref := &Ref{ID: id}
	if err := json.Unmarshal([]byte(props), &ref.Properties); err != nil {
		return nil, eris.Wrapf(err, "region: decode properties of region %d", id)
	}
	return ref, nil
}

// LoadIndex reads every region boundary into an in-memory Index.
func (c *Catalog) LoadIndex(ctx context.Context) (*Index, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, properties, ring FROM regions`)
	if err != nil {
		return nil, eris.Wrap(err, "region: load index")
	}
	defer func() { _ = rows.Close() }()

	idx := &Index{}
	for rows.Next() {
		var (
			id          int64
			props, ring string
		)
		if err := rows.Scan(&id, &props, &ring); err != nil {
			return nil, eris.Wrap(err, "region: scan catalog row")
		}
		entry := indexed{ref: Ref{ID: uint64(id)}}
		if err := json.Unmarshal([]byte(props), &entry.ref.Properties); err != nil {
			return nil, eris.Wrapf(err, "region: decode properties of region %d", id)
		}
		if err := json.Unmarshal([]byte(ring), &entry.ring); err != nil {
			return nil, eris.Wrapf(err, "region: decode ring of region %d", id)
		}
		if len(entry.ring) < 3 {
			zap.L().Warn("region: skipping degenerate boundary", zap.Int64("id", id))
			continue
		}
		entry.bounds = geom.NewBounds(geom.XY)
		for _, coord := range entry.ring {
			entry.bounds.Extend(geom.NewPointFlat(geom.XY, []float64{coord[0], coord[1]}))
		}
		idx.regions = append(idx.regions, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "region: iterate catalog rows")
	}

	// Deepest regions first so the most specific match wins, mirroring the
	// admin_rank ordering of the PostGIS finder.
	sort.SliceStable(idx.regions, func(i, j int) bool {
		return idx.regions[i].ref.Properties.Rank > idx.regions[j].ref.Properties.Rank
	})

	zap.L().Info("region: catalog index loaded", zap.Int("regions", len(idx.regions)))
	return idx, nil
}

type indexed struct {
	ref    Ref
	ring   []geom.Coord
	bounds *geom.Bounds
}

// Index is an in-memory point-in-polygon index over catalog boundaries.
// It is read-only after LoadIndex and safe for concurrent use.
type Index struct {
	regions []indexed
}

// ResolveOwner implements Finder.
func (idx *Index) ResolveOwner(_ context.Context, pt geom.Coord, pred Predicate) (*Ref, error) {
	for i := range idx.regions {
		entry := &idx.regions[i]
		if !entry.bounds.OverlapsPoint(geom.XY, pt) {
			continue
		}
		if !pointInRing(pt, entry.ring) {
			continue
		}
		if pred == nil || pred(entry.ref) {
			ref := entry.ref
			return &ref, nil
		}
	}
	return nil, nil
}

// pointInRing is an even-odd ray cast against an unclosed outer ring.
// Boundary precision follows vertex precision; points exactly on an edge may
// land on either side.
func pointInRing(pt geom.Coord, ring []geom.Coord) bool {
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		a, b := ring[i], ring[j]
		if (a[1] > pt[1]) != (b[1] > pt[1]) {
			x := (b[0]-a[0])*(pt[1]-a[1])/(b[1]-a[1]) + a[0]
			if pt[0] < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}
