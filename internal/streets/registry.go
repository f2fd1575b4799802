package streets

import (
	"sort"
	"sync"

	"github.com/sells-group/streetgen/internal/feature"
)

// Street is one logical named street scoped to a region: its merged
// multilingual name and its composite geometry. Streets live in the registry
// arena for the duration of a generation run.
type Street struct {
	Name     feature.Name
	Geometry Geometry
}

// Handle addresses a Street in the registry arena. Handles stay valid for the
// whole run, unlike interior pointers, so the reverse index can be read
// safely once the registry is finalized.
type Handle int

// Registry is the owning container of every Street: region identity to
// street name to Street, plus the reverse index from raw element identity to
// street handle and the surrogate identity counter.
//
// All mutation goes through Update, which holds the registry lock for the
// whole closure; a per-feature mutation is therefore one atomic unit.
type Registry struct {
	mu        sync.Mutex
	arena     []*Street
	regions   map[uint64]map[string]Handle
	features  map[feature.ID]Handle
	surrogate uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		regions:  make(map[uint64]map[string]Handle),
		features: make(map[feature.ID]Handle),
	}
}

// Update runs fn with the registry lock held. References obtained through the
// Tx are not safe to retain past the closure.
func (r *Registry) Update(fn func(tx *Tx)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&Tx{r: r})
}

// Tx is a locked view of the registry.
type Tx struct {
	r *Registry
}

// InsertStreet looks up or creates the Street for (regionID, name) and merges
// the incoming multilingual name map into it. An incoming language code
// overwrites the stored one; codes absent from the incoming map are kept.
func (tx *Tx) InsertStreet(regionID uint64, name string, langs feature.Name) Handle {
	byName := tx.r.regions[regionID]
	if byName == nil {
		byName = make(map[string]Handle)
		tx.r.regions[regionID] = byName
	}
	h, ok := byName[name]
	if !ok {
		h = Handle(len(tx.r.arena))
		tx.r.arena = append(tx.r.arena, &Street{Name: feature.Name{}})
		byName[name] = h
	}
	street := tx.r.arena[h]
	for code, s := range langs {
		street.Name[feature.CanonicalLang(code)] = s
	}
	if street.Name.Default() == "" {
		street.Name[feature.DefaultLang] = name
	}
	return h
}

// Street returns the Street behind a handle.
func (tx *Tx) Street(h Handle) *Street {
	return tx.r.arena[h]
}

// NextSurrogateID mints the next surrogate identity of the run.
func (tx *Tx) NextSurrogateID() feature.ID {
	tx.r.surrogate++
	return feature.SurrogateID(tx.r.surrogate)
}

// BindFeature records a reverse-index entry from a raw element identity to
// its street. The first binding for an identity wins; a raw element split
// across regions keeps pointing at the street of its first fragment.
func (tx *Tx) BindFeature(id feature.ID, h Handle) {
	if _, ok := tx.r.features[id]; !ok {
		tx.r.features[id] = h
	}
}

// The read-side accessors below are only valid after the mutation passes have
// fully completed; pass 3 and the exporter run behind that barrier.

// Lookup resolves a raw element identity to its street handle.
func (r *Registry) Lookup(id feature.ID) (Handle, bool) {
	h, ok := r.features[id]
	return h, ok
}

// StreetAt returns the Street behind a handle.
func (r *Registry) StreetAt(h Handle) *Street {
	return r.arena[h]
}

// Len returns the number of streets in the arena.
func (r *Registry) Len() int {
	return len(r.arena)
}

// EachRegion visits every region and its streets. Region and name order is
// unspecified to callers; iteration here is sorted only to keep runs
// reproducible in logs and tests.
func (r *Registry) EachRegion(fn func(regionID uint64, name string, h Handle) error) error {
	regionIDs := make([]uint64, 0, len(r.regions))
	for id := range r.regions {
		regionIDs = append(regionIDs, id)
	}
	sort.Slice(regionIDs, func(i, j int) bool { return regionIDs[i] < regionIDs[j] })
	for _, regionID := range regionIDs {
		byName := r.regions[regionID]
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := fn(regionID, name, byName[name]); err != nil {
				return err
			}
		}
	}
	return nil
}
