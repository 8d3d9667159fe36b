package command

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/pkg/cmd"
)

// Result summarizes one Sync run.
type Result struct {
	Existing   int
	Cleared    bool
	Registered []string
}

// Sync converges reg towards desired. When more than threshold commands are
// already registered the registry is cleared first; otherwise desired specs
// are registered on top of whatever exists, which the platform treats as an
// upsert by name.
//
// Individual failures do not stop the run. A *RegistrationError is returned
// when any spec failed; callers should treat it as fatal only when
// RegistrationError.Fatal reports true.
func Sync(ctx context.Context, reg Registry, desired []cmd.Spec, threshold int) (Result, error) {
	var res Result
	if threshold <= 0 {
		threshold = DefaultClearThreshold
	}

	existing, err := reg.List(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list commands: %w", err)
	}
	res.Existing = len(existing)

	if len(existing) > threshold {
		log.Info().Int("existing", len(existing)).Int("threshold", threshold).Msg("clearing registered commands")
		if err := reg.Clear(ctx); err != nil {
			return res, fmt.Errorf("failed to clear commands: %w", err)
		}
		res.Cleared = true
	}

	failed := make(map[string]error)
	for _, spec := range desired {
		if err := ctx.Err(); err != nil {
			failed[spec.Name] = err
			continue
		}
		if err := reg.Register(ctx, spec); err != nil {
			log.Error().Err(err).Str("command", spec.Name).Msg("failed to register command")
			failed[spec.Name] = err
			continue
		}
		res.Registered = append(res.Registered, spec.Name)
	}

	if len(failed) > 0 {
		return res, &RegistrationError{Failed: failed, Registered: len(res.Registered)}
	}
	return res, nil
}
