package streets

import "github.com/sells-group/streetgen/internal/feature"

// Classifier decides whether a feature's tag set denotes a street or square.
// It is injected into the builder so the core never hardcodes a type system.
type Classifier func(f *feature.Feature) bool

// IsStreetFeature is the default classifier: a named highway way or area, or
// a named square.
func IsStreetFeature(f *feature.Feature) bool {
	if f.Name.Default() == "" {
		return false
	}
	if _, ok := f.Tags["highway"]; ok && (f.IsLine() || f.IsArea()) {
		return true
	}
	if f.HasTag("place", "square") {
		return true
	}
	return false
}
