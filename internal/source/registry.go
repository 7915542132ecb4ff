package source

import (
	"fmt"
	"slices"
)

// Constructor is a function that creates a new Decoder instance.
type Constructor func() Decoder

var registry = map[string]Constructor{}

// Register adds a decoder constructor under the given compression name.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Get returns the decoder constructor for the given compression name.
func Get(name string) (Constructor, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown compression: %s", name)
	}
	return ctor, nil
}

// Providers returns the names of all registered decoders, sorted.
func Providers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
