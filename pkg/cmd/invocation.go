// Package cmd provides a transport-agnostic command core: a command is something
// with a name, description, and Run(ctx, invocation). How it is registered and
// dispatched (Discord slash, CLI) is defined by adapters that wrap this.
package cmd

import "context"

// Invocation carries what any command runner can pass: the invoked name,
// named string arguments and an opaque payload. Adapters set Data to their
// reply context (e.g. a Discord interaction).
type Invocation struct {
	Name string
	Args map[string]string
	Data any
}

// Arg returns the named argument or "" when absent.
func (inv *Invocation) Arg(name string) string {
	if inv == nil || inv.Args == nil {
		return ""
	}
	return inv.Args[name]
}

// Command is the universal contract: identity plus execution. Permissions and
// transport-specific registration stay in adapters.
type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}
