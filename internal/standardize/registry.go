package standardize

import (
	"errors"
	"fmt"

	"tradeledger/internal/domain"
)

// ErrConfigMissing signals that no mapping exists for a file's
// (country, direction, format) triple. The file is marked FAILED and the
// stage moves on; nothing is retried.
var ErrConfigMissing = errors.New("mapping config missing")

// ErrRowParse signals a malformed value inside a file's rows. The file is
// marked FAILED at the offending row; retrying cannot change the data, so
// the stage moves on.
var ErrRowParse = errors.New("row parse failure")

// Registry resolves mapping specs by their (country, direction, format) key.
// Specs are immutable inputs; the registry never mutates them.
type Registry struct {
	specs map[string]*domain.MappingSpec
}

// NewRegistry wraps the parsed mapping set, keyed by
// <country>_<direction>_<format> (lowercase).
func NewRegistry(specs map[string]*domain.MappingSpec) *Registry {
	if specs == nil {
		specs = map[string]*domain.MappingSpec{}
	}
	return &Registry{specs: specs}
}

// Lookup returns the spec for a key, or ErrConfigMissing.
func (r *Registry) Lookup(key domain.MappingKey) (*domain.MappingSpec, error) {
	spec, ok := r.specs[key.String()]
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrConfigMissing, key.String())
	}
	return spec, nil
}

// Keys returns all registered mapping keys. Operator surface.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.specs))
	for k := range r.specs {
		keys = append(keys, k)
	}
	return keys
}
