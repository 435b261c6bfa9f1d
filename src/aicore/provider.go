package aicore

import (
	"context"
)

// Provider is the contract every inference backend implements. Exactly one
// provider is active per manager instance; the manager owns switching.
type Provider interface {
	// Generate produces text for the prompt. Implementations must honor the
	// timeout in opts and fail with KindTimeout rather than hang.
	Generate(ctx context.Context, prompt string, opts *GenerateOptions) (*GenerateResult, error)

	// IsReady is a non-blocking readiness probe.
	IsReady() bool

	// Status returns the structured provider state plus diagnostic detail.
	Status() ProviderStatus

	// Initialize prepares the provider for use. Idempotent: calling it on an
	// already-ready provider is a no-op success.
	Initialize(ctx context.Context) error

	// Cleanup releases held resources. Called on provider switch or shutdown.
	Cleanup(ctx context.Context) error

	// Capabilities returns the declared capability set, e.g. "tool-calling".
	Capabilities() []string

	// ModelType reports which backend class this provider is.
	ModelType() ModelType

	// ValidatePrompt rejects empty or oversized input before inference.
	ValidatePrompt(prompt string) error
}

// Capability names understood by the orchestrator.
const (
	CapabilityToolCalling = "tool-calling"
	CapabilityStreaming   = "streaming"
)

// ModelType identifies which class of backend served a request.
type ModelType string

const (
	ModelTypeCloud ModelType = "cloud"
	ModelTypeLocal ModelType = "local"
)
