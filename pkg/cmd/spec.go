package cmd

import "sort"

// Option describes a single string argument of a command.
type Option struct {
	Name        string
	Description string
	Required    bool
}

// Spec is the platform-neutral definition of a command as it is announced to
// a remote registry.
type Spec struct {
	Name        string
	Description string
	Options     []Option
}

// SpecProvider is implemented by commands that can be announced remotely.
type SpecProvider interface {
	Spec() Spec
}

// SpecOf returns the Spec of c, unwrapping middleware. Commands that do not
// implement SpecProvider get a Spec built from Name and Description.
func SpecOf(c Command) Spec {
	if sp, ok := Root(c).(SpecProvider); ok {
		return sp.Spec()
	}
	return Spec{Name: c.Name(), Description: c.Description()}
}

// Names returns the sorted names of specs.
func Names(specs []Spec) []string {
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Name)
	}
	sort.Strings(out)
	return out
}
