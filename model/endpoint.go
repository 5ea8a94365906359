package model

// Provider identifies the adapter that owns a task.
type Provider string

const (
	ProviderKling  Provider = "kling"
	ProviderRunway Provider = "runway"
	ProviderDeer   Provider = "deer"
)

func (p Provider) String() string {
	return string(p)
}

// TransportKind is the request body encoding an endpoint expects.
type TransportKind string

const (
	TransportMultipart TransportKind = "multipart"
	TransportJSON      TransportKind = "json"
)

// AspectClass is the routing bin an aspect ratio falls into.
type AspectClass string

const (
	AspectAny        AspectClass = ""
	AspectSquare     AspectClass = "square"
	AspectWidescreen AspectClass = "widescreen"
)

// ResolvedEndpoint is the concrete provider endpoint chosen for a request.
// It is derived on every submit and never persisted.
type ResolvedEndpoint struct {
	Provider    Provider      `json:"provider"`
	ModelFamily string        `json:"model_family"`
	Path        string        `json:"path"`
	Transport   TransportKind `json:"transport"`

	// Model and Mode are forwarded to providers that select the model
	// version and quality in the body rather than the path.
	Model string `json:"model,omitempty"`
	Mode  string `json:"mode,omitempty"`

	// DurationSeconds is the effective duration after tie-breaking;
	// 0 when the provider fixes it.
	DurationSeconds int `json:"duration_seconds,omitempty"`
}

// String returns provider and path, used in logs and error messages.
func (e ResolvedEndpoint) String() string {
	return string(e.Provider) + ":" + e.Path
}
