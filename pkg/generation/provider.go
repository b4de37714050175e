package generation

import "context"

// Provider produces the reading text for input using the named model.
// Implementations return ErrProviderTimeout when ctx expires and
// ErrProviderFailure or ErrEmptyResult otherwise.
type Provider interface {
	Generate(ctx context.Context, model string, input Input) (string, error)
}
