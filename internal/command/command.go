// Package command keeps the remote slash-command registry in line with the
// commands this bot serves.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/keshon/jukebox/pkg/cmd"
)

// DefaultClearThreshold is the number of remote commands above which Sync
// wipes the registry before registering.
const DefaultClearThreshold = 3

// Registry is a remote command registry scoped to one guild.
type Registry interface {
	List(ctx context.Context) ([]cmd.Spec, error)
	Clear(ctx context.Context) error
	Register(ctx context.Context, spec cmd.Spec) error
}

// RegistrationError collects the specs that failed to register.
type RegistrationError struct {
	Failed map[string]error
	// Registered is the number of specs that did register.
	Registered int
}

func (e *RegistrationError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for name, err := range e.Failed {
		names = append(names, fmt.Sprintf("%s: %v", name, err))
	}
	return fmt.Sprintf("failed to register %d command(s), %d registered: %s",
		len(e.Failed), e.Registered, strings.Join(names, "; "))
}

// Unwrap exposes the individual registration failures.
func (e *RegistrationError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		out = append(out, err)
	}
	return out
}

// Fatal reports whether nothing at all could be registered.
func (e *RegistrationError) Fatal() bool {
	return e.Registered == 0
}

// IsFatal reports whether err is a RegistrationError with zero registrations
// or any other non-nil error.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var regErr *RegistrationError
	if errors.As(err, &regErr) {
		return regErr.Fatal()
	}
	return true
}
