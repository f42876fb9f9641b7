package engine

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"
)

// Configuration is an immutable set of selected feature identifiers.
// Features not in the set are absent.
type Configuration struct {
	ids []string
}

// NewConfiguration builds a configuration from ids. Order and duplicates are ignored.
func NewConfiguration(ids ...string) Configuration {
	out := slices.Clone(ids)
	sort.Strings(out)
	return Configuration{ids: slices.Compact(out)}
}

// ParseConfiguration parses a comma-separated list such as "Root, A, B".
func ParseConfiguration(label string) Configuration {
	var ids []string
	for _, part := range strings.Split(label, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return NewConfiguration(ids...)
}

// Has reports whether id is selected.
func (c Configuration) Has(id string) bool {
	_, found := slices.BinarySearch(c.ids, id)
	return found
}

// Features returns the selected identifiers in lexicographic order.
func (c Configuration) Features() []string {
	return slices.Clone(c.ids)
}

// Len returns the number of selected features.
func (c Configuration) Len() int {
	return len(c.ids)
}

// Label renders the configuration as sorted, comma-joined identifiers.
func (c Configuration) Label() string {
	return strings.Join(c.ids, ", ")
}

// String implements fmt.Stringer.
func (c Configuration) String() string {
	return "{" + c.Label() + "}"
}

// Without returns a copy with the given identifiers removed.
func (c Configuration) Without(ids ...string) Configuration {
	out := make([]string, 0, len(c.ids))
	for _, id := range c.ids {
		if !slices.Contains(ids, id) {
			out = append(out, id)
		}
	}
	return Configuration{ids: out}
}

// IsSubsetOf reports whether every selected feature of c is selected in o.
func (c Configuration) IsSubsetOf(o Configuration) bool {
	for _, id := range c.ids {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

// Equal reports whether both configurations select the same features.
func (c Configuration) Equal(o Configuration) bool {
	return slices.Equal(c.ids, o.ids)
}

// MarshalJSON encodes the configuration as a sorted array of identifiers.
func (c Configuration) MarshalJSON() ([]byte, error) {
	if c.ids == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.ids)
}

// UnmarshalJSON decodes an array of identifiers.
func (c *Configuration) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*c = NewConfiguration(ids...)
	return nil
}

// Labels renders each configuration with Label.
func Labels(configs []Configuration) []string {
	out := make([]string, len(configs))
	for i, c := range configs {
		out[i] = c.Label()
	}
	return out
}
