// Package feature defines the raw feature record model shared by every
// generation stage: typed geometry, tag access, multilingual names, and the
// two-space identity scheme used to keep synthesized fragments apart from
// source elements.
package feature

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"golang.org/x/text/language"
)

// Space distinguishes the two identity domains a feature identity can
// belong to. Native identities are derived from the source record; surrogate
// identities are minted per generation run for synthesized fragments.
type Space uint8

const (
	SpaceNative Space = iota + 1
	SpaceSurrogate
)

// ID identifies a feature within one identity space. The zero value is
// "no identity".
type ID struct {
	Space  Space
	Serial uint64
}

// NativeID returns a native-space identity for a source record serial.
func NativeID(serial uint64) ID {
	return ID{Space: SpaceNative, Serial: serial}
}

// SurrogateID returns a surrogate-space identity. Serials are run-local and
// must come from a single monotonic counter.
func SurrogateID(serial uint64) ID {
	return ID{Space: SpaceSurrogate, Serial: serial}
}

// IsZero reports whether the identity is unset.
func (id ID) IsZero() bool {
	return id.Space == 0
}

func (id ID) String() string {
	switch id.Space {
	case SpaceNative:
		return fmt.Sprintf("w%d", id.Serial)
	case SpaceSurrogate:
		return fmt.Sprintf("s%d", id.Serial)
	}
	return "?"
}

// ParseID parses the string form produced by ID.String.
func ParseID(s string) (ID, error) {
	if len(s) < 2 {
		return ID{}, eris.Errorf("feature: malformed id %q", s)
	}
	var space Space
	switch s[0] {
	case 'w':
		space = SpaceNative
	case 's':
		space = SpaceSurrogate
	default:
		return ID{}, eris.Errorf("feature: unknown id space in %q", s)
	}
	var serial uint64
	if _, err := fmt.Sscanf(s[1:], "%d", &serial); err != nil {
		return ID{}, eris.Wrapf(err, "feature: parse id %q", s)
	}
	return ID{Space: space, Serial: serial}, nil
}

// Less orders identities by space, then serial. Used where deterministic
// iteration over identity-keyed maps is required.
func (id ID) Less(other ID) bool {
	if id.Space != other.Space {
		return id.Space < other.Space
	}
	return id.Serial < other.Serial
}

// DefaultLang keys the untagged display name in a Name map.
const DefaultLang = "default"

// Name is a multilingual name map, language code to display string.
type Name map[string]string

// Default returns the untagged display name.
func (n Name) Default() string {
	return n[DefaultLang]
}

// Clone returns a copy of the name map.
func (n Name) Clone() Name {
	if n == nil {
		return nil
	}
	out := make(Name, len(n))
	for code, s := range n {
		out[code] = s
	}
	return out
}

// CanonicalLang normalizes a language code to its canonical BCP 47 base form
// ("EN-us" -> "en"). Codes that do not parse are lowercased as-is, so odd
// source tags still merge consistently.
func CanonicalLang(code string) string {
	if code == DefaultLang || code == "" {
		return DefaultLang
	}
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return strings.ToLower(code)
	}
	return base.String()
}

// Kind is the declared geometric shape of a feature.
type Kind uint8

const (
	KindPoint Kind = iota + 1
	KindLine
	KindArea
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	case KindArea:
		return "area"
	}
	return "unknown"
}

// Feature is one raw feature record: ways, points, and areas with tags,
// geometry, and an identity. Exactly one geometry member is populated,
// matching Kind.
type Feature struct {
	ID     ID
	Kind   Kind
	Tags   map[string]string
	Name   Name
	Street string // addr:street binding, if any

	Point geom.Coord   // KindPoint
	Line  []geom.Coord // KindLine: ordered polyline vertices
	Area  []geom.Coord // KindArea: outer ring vertices
}

// Tag returns a tag value or the empty string.
func (f *Feature) Tag(key string) string {
	return f.Tags[key]
}

// HasTag reports whether the tag is present with the given value.
func (f *Feature) HasTag(key, value string) bool {
	v, ok := f.Tags[key]
	return ok && v == value
}

func (f *Feature) IsPoint() bool { return f.Kind == KindPoint }
func (f *Feature) IsLine() bool  { return f.Kind == KindLine }
func (f *Feature) IsArea() bool  { return f.Kind == KindArea }

// KeyPoint returns the representative coordinate of a point feature.
// Calling it on a feature whose declared shape has no point geometry is a
// data-integrity fault.
func (f *Feature) KeyPoint() (geom.Coord, error) {
	if f.Kind != KindPoint || len(f.Point) < 2 {
		return nil, eris.Errorf("feature: %s has no key point (kind %s)", f.ID, f.Kind)
	}
	return f.Point, nil
}

// Center returns the center of an area feature's bounding rectangle.
func (f *Feature) Center() (geom.Coord, error) {
	if f.Kind != KindArea || len(f.Area) == 0 {
		return nil, eris.Errorf("feature: %s has no area geometry (kind %s)", f.ID, f.Kind)
	}
	b := geom.NewBounds(geom.XY)
	for _, c := range f.Area {
		b.Extend(geom.NewPointFlat(geom.XY, []float64{c[0], c[1]}))
	}
	return geom.Coord{(b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2}, nil
}

// Clone returns a deep copy of the feature.
func (f *Feature) Clone() *Feature {
	out := &Feature{
		ID:     f.ID,
		Kind:   f.Kind,
		Street: f.Street,
		Name:   f.Name.Clone(),
	}
	if f.Tags != nil {
		out.Tags = make(map[string]string, len(f.Tags))
		for k, v := range f.Tags {
			out.Tags[k] = v
		}
	}
	out.Point = append(geom.Coord(nil), f.Point...)
	out.Line = cloneCoords(f.Line)
	out.Area = cloneCoords(f.Area)
	return out
}

func cloneCoords(coords []geom.Coord) []geom.Coord {
	if coords == nil {
		return nil
	}
	out := make([]geom.Coord, len(coords))
	for i, c := range coords {
		out[i] = append(geom.Coord(nil), c...)
	}
	return out
}
