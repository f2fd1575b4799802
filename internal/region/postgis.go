package region

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/streetgen/internal/db"
)

// PostGISFinder resolves region ownership with ST_Contains against the
// geo.admin_regions table. Candidates come back deepest-first so the most
// specific region satisfying the predicate wins.
type PostGISFinder struct {
	pool db.Pool
}

// NewPostGISFinder creates a finder over an admin-regions PostGIS table.
func NewPostGISFinder(pool db.Pool) *PostGISFinder {
	return &PostGISFinder{pool: pool}
}

// ResolveOwner implements Finder.
func (f *PostGISFinder) ResolveOwner(ctx context.Context, pt geom.Coord, pred Predicate) (*Ref, error) {
	sql := `
		SELECT id, properties
		FROM geo.admin_regions
		WHERE ST_Contains(geom, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		ORDER BY admin_rank DESC
	`
	rows, err := f.pool.Query(ctx, sql, pt[0], pt[1])
	if err != nil {
		return nil, eris.Wrap(err, "region: resolve owner query")
	}
	defer rows.Close()

	for rows.Next() {
		ref, err := scanRef(rows)
		if err != nil {
			return nil, err
		}
		if pred == nil || pred(*ref) {
			return ref, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "region: iterate owner candidates")
	}
	return nil, nil
}

// Region implements Getter.
func (f *PostGISFinder) Region(ctx context.Context, id uint64) (*Ref, error) {
	sql := `SELECT id, properties FROM geo.admin_regions WHERE id = $1`
	rows, err := f.pool.Query(ctx, sql, id)
	if err != nil {
		return nil, eris.Wrap(err, "region: get region query")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "region: get region")
		}
		return nil, nil
	}
	return scanRef(rows)
}

func scanRef(rows pgx.Rows) (*Ref, error) {
	var (
		id    uint64
		props []byte
	)
	if err := rows.Scan(&id, &props); err != nil {
		return nil, eris.Wrap(err, "region: scan region row")
	}
	ref := &Ref{ID: id}
	if err := json.Unmarshal(props, &ref.Properties); err != nil {
		return nil, eris.Wrapf(err, "region: decode properties of region %d", id)
	}
	return ref, nil
}
