// Provides JSON schemas for operation objects.

package operations

import (
	"github.com/invopop/jsonschema"
)

// Schema returns a schema accepting any registered operation.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	s := &jsonschema.Schema{Version: jsonschema.Version}
	for _, kind := range Kinds() {
		op := factory(kind)()
		o := r.Reflect(op)
		o.Version = ""
		o.Title = kind
		if p, ok := o.Properties.Get("op"); ok {
			p.Const = kind
		}
		s.OneOf = append(s.OneOf, o)
	}
	return s
}
