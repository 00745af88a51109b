// Provides JSON schemas for facet configurations.

package facets

import (
	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of an engine configuration: a mode plus a
// list of facets, each one of the known facet configurations.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	facet := &jsonschema.Schema{OneOf: []*jsonschema.Schema{
		r.Reflect(&RangeConfig{}),
		r.Reflect(&TextConfig{}),
		r.Reflect(&ListConfig{}),
	}}
	s := r.Reflect(&EngineConfig{})
	if p, ok := s.Properties.Get("facets"); ok {
		p.Items = facet
	}
	return s
}
