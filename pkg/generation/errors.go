package generation

import "errors"

var (
	// ErrGenerationFailed is returned by Service.Generate when the provider
	// failed. The credit was released, so the caller may retry.
	ErrGenerationFailed = errors.New("generation failed, please retry")

	ErrProviderTimeout = errors.New("generation provider timed out")
	ErrProviderFailure = errors.New("generation provider request failed")
	ErrEmptyResult     = errors.New("generation provider returned an empty result")
	ErrMissingAPIKey   = errors.New("gemini api key is not configured")
)
