// Package scripts holds the measurement scripts available to the CLI.
package scripts

import (
	"fmt"
	"slices"
	"sync"

	"github.com/banshee-data/mascril/internal/instrument"
	"github.com/banshee-data/mascril/internal/measure"
)

var (
	mu       sync.RWMutex
	registry = map[string]measure.Script{}
)

func init() {
	Register(DC2Gates())
	Register(VNA1Gate())
}

// Register adds s to the registry. It panics if the name is taken.
func Register(s measure.Script) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := registry[s.Name()]; dup {
		panic(fmt.Sprintf("scripts: %s registered twice", s.Name()))
	}
	registry[s.Name()] = s
}

// Lookup returns the script called name.
func Lookup(name string) (measure.Script, error) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown script %q (available: %v)", name, sortedKeys(registry))
	}
	return s, nil
}

// Names returns the registered script names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedKeys(registry)
}

// Simulated is implemented by scripts that can describe a simulated rig
// for dry runs.
type Simulated interface {
	Simulator() *instrument.SimProvider
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
