// Package param declares the typed parameters a measurement script accepts
// and binds run-time overrides against them.
//
// A Schema is declared once per script. Each run calls Bind with the
// operator's overrides; the resulting Binding is what the script reads its
// configuration from. Every validation problem is a *ConfigurationError and is
// reported before any instrument is touched.
package param

import (
	"fmt"
	"slices"

	"github.com/banshee-data/mascril/internal/measure/sweep"
)

// Kind is the declared type of a parameter.
type Kind string

const (
	KindScalar  Kind = "scalar"
	KindBoolean Kind = "boolean"
	KindString  Kind = "string"
	KindPath    Kind = "path"
	KindSweep   Kind = "sweep"
	KindSelect  Kind = "select"
)

// Spec declares one parameter. Default must be consistent with Kind: float64
// for scalars, bool for booleans, string for strings, paths and selects, and
// *sweep.Sweep for sweeps.
type Spec struct {
	Name    string
	Kind    Kind
	Default any
	// Options lists the accepted values of a select parameter.
	Options []string
	Help    string
}

// Scalar declares a float parameter.
func Scalar(name string, def float64) Spec {
	return Spec{Name: name, Kind: KindScalar, Default: def}
}

// Boolean declares a flag parameter.
func Boolean(name string, def bool) Spec {
	return Spec{Name: name, Kind: KindBoolean, Default: def}
}

// String declares a free-text parameter.
func String(name, def string) Spec {
	return Spec{Name: name, Kind: KindString, Default: def}
}

// Path declares a file-system path parameter. The path is not checked for
// existence.
func Path(name, def string) Spec {
	return Spec{Name: name, Kind: KindPath, Default: def}
}

// Sweep declares a sweep parameter. A nil default is an empty sweep.
func Sweep(name string, def *sweep.Sweep) Spec {
	if def == nil {
		def = sweep.New()
	}
	return Spec{Name: name, Kind: KindSweep, Default: def}
}

// Select declares a string parameter restricted to options.
func Select(name string, options []string, defaultIndex int) Spec {
	var def string
	if defaultIndex >= 0 && defaultIndex < len(options) {
		def = options[defaultIndex]
	}
	return Spec{Name: name, Kind: KindSelect, Default: def, Options: slices.Clone(options)}
}

// WithHelp returns a copy of s with a help text attached.
func (s Spec) WithHelp(help string) Spec {
	s.Help = help
	return s
}

// Schema is an ordered, immutable set of parameter specs.
type Schema struct {
	specs []Spec
	index map[string]int
}

// Declare builds a schema from specs. Names must be unique and non-empty and
// every default must match its kind.
func Declare(specs ...Spec) (*Schema, error) {
	s := &Schema{
		specs: make([]Spec, 0, len(specs)),
		index: make(map[string]int, len(specs)),
	}
	var errs configErrors
	for _, spec := range specs {
		if spec.Name == "" {
			errs = append(errs, &ConfigurationError{Reason: "parameter name must not be empty"})
			continue
		}
		if _, dup := s.index[spec.Name]; dup {
			errs = append(errs, &ConfigurationError{Param: spec.Name, Reason: "declared more than once"})
			continue
		}
		if spec.Kind == KindSelect && len(spec.Options) == 0 {
			errs = append(errs, &ConfigurationError{Param: spec.Name, Reason: "select parameter needs at least one option"})
			continue
		}
		if _, err := spec.coerce(spec.Default); err != nil {
			errs = append(errs, &ConfigurationError{Param: spec.Name, Reason: "invalid default: " + err.Error()})
			continue
		}
		s.index[spec.Name] = len(s.specs)
		s.specs = append(s.specs, spec)
	}
	if len(errs) > 0 {
		return nil, errs.err()
	}
	return s, nil
}

// MustDeclare is like Declare but panics on error. It is intended for
// package-level script definitions.
func MustDeclare(specs ...Spec) *Schema {
	s, err := Declare(specs...)
	if err != nil {
		panic(fmt.Sprintf("param: %v", err))
	}
	return s
}

// Specs returns the declared specs in declaration order.
func (s *Schema) Specs() []Spec {
	return slices.Clone(s.specs)
}

// Lookup returns the spec declared under name.
func (s *Schema) Lookup(name string) (Spec, bool) {
	i, ok := s.index[name]
	if !ok {
		return Spec{}, false
	}
	return s.specs[i], true
}

// Bind validates overrides against the schema and returns the run's
// binding. Parameters without an override take their default.
func (s *Schema) Bind(overrides map[string]any) (Binding, error) {
	var errs configErrors

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if _, ok := s.index[name]; !ok {
			errs = append(errs, &ConfigurationError{Param: name, Reason: "unknown parameter"})
		}
	}

	values := make(map[string]any, len(s.specs))
	for _, spec := range s.specs {
		raw, ok := overrides[spec.Name]
		if !ok {
			raw = spec.Default
		}
		v, err := spec.coerce(raw)
		if err != nil {
			errs = append(errs, &ConfigurationError{Param: spec.Name, Reason: err.Error()})
			continue
		}
		values[spec.Name] = v
	}

	if len(errs) > 0 {
		return Binding{}, errs.err()
	}
	return Binding{schema: s, values: values}, nil
}
