package intent

import (
	"fmt"
	"strings"
)

// Feature is a server capability an intent can require.
type Feature uint8

const (
	FeatureTor Feature = 1 << iota
	FeatureP2P
)

var featureNames = []struct {
	f    Feature
	name string
}{
	{FeatureTor, "tor"},
	{FeatureP2P, "p2p"},
}

func (f Feature) String() string {
	for _, fn := range featureNames {
		if fn.f == f {
			return fn.name
		}
	}
	return fmt.Sprintf("feature(%d)", uint8(f))
}

// ParseFeature parses a feature name as printed by Feature.String.
func ParseFeature(s string) (Feature, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, fn := range featureNames {
		if fn.name == name {
			return fn.f, nil
		}
	}
	return 0, fmt.Errorf("intent: unknown feature %q", s)
}

// FeatureSet is an immutable set of required features.
type FeatureSet uint8

// NoFeatures is the empty set.
const NoFeatures FeatureSet = 0

// Features builds a set from individual features.
func Features(fs ...Feature) FeatureSet {
	var set FeatureSet
	for _, f := range fs {
		set |= FeatureSet(f)
	}
	return set
}

func (s FeatureSet) Has(f Feature) bool { return s&FeatureSet(f) != 0 }
func (s FeatureSet) IsEmpty() bool      { return s == NoFeatures }

// ContainsAll reports whether every feature of other is also in s.
func (s FeatureSet) ContainsAll(other FeatureSet) bool { return s&other == other }

// Names returns the feature names in a stable order.
func (s FeatureSet) Names() []string {
	names := []string{}
	for _, fn := range featureNames {
		if s.Has(fn.f) {
			names = append(names, fn.name)
		}
	}
	return names
}

func (s FeatureSet) String() string {
	if s.IsEmpty() {
		return "none"
	}
	return strings.Join(s.Names(), ",")
}

// ParseFeatureSet parses feature names, ignoring blanks.
func ParseFeatureSet(names []string) (FeatureSet, error) {
	var set FeatureSet
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		f, err := ParseFeature(n)
		if err != nil {
			return NoFeatures, err
		}
		set |= FeatureSet(f)
	}
	return set, nil
}
