package param

import (
	"fmt"

	"github.com/banshee-data/mascril/internal/measure/sweep"
)

// Binding maps every declared parameter to its value for one run. It is
// created by Schema.Bind and never modified afterwards.
//
// The typed accessors panic when name is undeclared or has a different kind;
// both are programming errors in the script, not operator input errors.
type Binding struct {
	schema *Schema
	values map[string]any
}

// Has reports whether name is bound.
func (b Binding) Has(name string) bool {
	_, ok := b.values[name]
	return ok
}

// Names returns the bound parameter names in declaration order.
func (b Binding) Names() []string {
	if b.schema == nil {
		return nil
	}
	names := make([]string, 0, len(b.schema.specs))
	for _, spec := range b.schema.specs {
		names = append(names, spec.Name)
	}
	return names
}

// Value returns the raw bound value.
func (b Binding) Value(name string) (any, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Float returns a scalar parameter.
func (b Binding) Float(name string) float64 {
	return mustGet[float64](b, name, KindScalar)
}

// Bool returns a boolean parameter.
func (b Binding) Bool(name string) bool {
	return mustGet[bool](b, name, KindBoolean)
}

// String returns a string or select parameter.
func (b Binding) String(name string) string {
	return mustGet[string](b, name, KindString, KindSelect)
}

// Path returns a path parameter.
func (b Binding) Path(name string) string {
	return mustGet[string](b, name, KindPath)
}

// Sweep returns a sweep parameter.
func (b Binding) Sweep(name string) *sweep.Sweep {
	return mustGet[*sweep.Sweep](b, name, KindSweep)
}

func mustGet[T any](b Binding, name string, kinds ...Kind) T {
	if b.schema == nil {
		panic(fmt.Sprintf("param: %q read from an unbound Binding", name))
	}
	spec, ok := b.schema.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("param: %q is not declared", name))
	}
	match := false
	for _, k := range kinds {
		if spec.Kind == k {
			match = true
			break
		}
	}
	if !match {
		panic(fmt.Sprintf("param: %q is a %s parameter, not %s", name, spec.Kind, kinds[0]))
	}
	return b.values[name].(T)
}
