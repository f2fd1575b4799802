// Package region defines the region-ownership capability the street
// aggregation core depends on: given a point and a filter predicate, which
// administrative region owns it. Two backends are provided, a PostGIS
// point-in-polygon finder and a local SQLite catalog with an in-memory
// ring index.
package region

import (
	"context"

	"github.com/twpayne/go-geom"
)

// Address holds the resolved address attributes of a region's default locale.
type Address struct {
	Country     string `json:"country,omitempty"`
	Region      string `json:"region,omitempty"`
	Subregion   string `json:"subregion,omitempty"`
	Locality    string `json:"locality,omitempty"`
	Suburb      string `json:"suburb,omitempty"`
	Sublocality string `json:"sublocality,omitempty"`
}

// Properties is the structured region record used for predicates and for
// building export back-references.
type Properties struct {
	Name    map[string]string `json:"name"`
	Address Address           `json:"address"`
	Rank    int               `json:"rank"` // admin hierarchy depth, deeper is more specific
}

// Ref is a reference to one administrative region.
type Ref struct {
	ID         uint64
	Properties Properties
}

// Predicate filters candidate owning regions.
type Predicate func(ref Ref) bool

// Finder resolves which administrative region owns a point, subject to a
// predicate. A nil result with a nil error means no region claims the point.
type Finder interface {
	ResolveOwner(ctx context.Context, pt geom.Coord, pred Predicate) (*Ref, error)
}

// Getter returns the full region record for a region identity.
type Getter interface {
	Region(ctx context.Context, id uint64) (*Ref, error)
}

// StreetAdministrator returns the predicate selecting regions suitable for
// owning streets: sub-localities (suburbs) never own through-traffic streets,
// and point-level decisions additionally require locality resolution.
func StreetAdministrator(needLocality bool) Predicate {
	return func(ref Ref) bool {
		addr := ref.Properties.Address
		if addr.Suburb != "" || addr.Sublocality != "" {
			return false
		}
		if needLocality && addr.Locality == "" {
			return false
		}
		return true
	}
}
