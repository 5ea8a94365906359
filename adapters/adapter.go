// Package adapters defines the provider adapter contract and the HTTP
// mechanics shared by the per-provider implementations.
package adapters

import (
	"context"
	"net/http"
	"time"

	"github.com/feitianbubu/vidgate/model"
	"github.com/feitianbubu/vidgate/payload"
)

// State is an adapter's reading of a provider status string.
type State string

const (
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateUnknown    State = "unknown"
)

// Handle identifies a task on the provider side.
type Handle struct {
	ProviderTaskID string `json:"provider_task_id"`

	// Endpoint and Body are only set on handles returned by Submit.
	Endpoint model.ResolvedEndpoint `json:"endpoint,omitempty"`
	Body     []byte                 `json:"-"`
}

// RawStatus is a provider status reading.
type RawStatus struct {
	ProviderTaskID string `json:"provider_task_id"`
	RawStatus      string `json:"raw_status"`
	State          State  `json:"state"`
	Message        string `json:"message,omitempty"`
	Body           []byte `json:"-"`
}

// RawResult is a provider result reading. A succeeded result may still lack
// a video URL; the orchestrator decides what that means.
type RawResult struct {
	ProviderTaskID string `json:"provider_task_id"`
	RawStatus      string `json:"raw_status"`
	State          State  `json:"state"`
	VideoURL       string `json:"video_url,omitempty"`
	CoverURL       string `json:"cover_url,omitempty"`
	Message        string `json:"message,omitempty"`
	Body           []byte `json:"-"`
}

// Adapter talks to one provider.
type Adapter interface {
	Name() model.Provider
	Submit(ctx context.Context, p *payload.Payload, ep model.ResolvedEndpoint) (*Handle, error)
	CheckStatus(ctx context.Context, h *Handle) (*RawStatus, error)
	FetchResult(ctx context.Context, h *Handle) (*RawResult, error)
	SupportsExtend() bool
}

// ProviderConfig holds configuration for a specific provider
type ProviderConfig struct {
	BaseURL   string            `json:"base_url"`
	APIKey    string            `json:"api_key"`
	SecretKey string            `json:"secret_key,omitempty"`
	Timeout   time.Duration     `json:"timeout"`
	UserAgent string            `json:"user_agent,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client `json:"-"`
}

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "vidgate/1.0"
)

// NewTransport builds the shared transport for provider from cfg, falling
// back to defaultBaseURL when none is configured.
func NewTransport(provider model.Provider, cfg *ProviderConfig, defaultBaseURL string) *Transport {
	if cfg == nil {
		cfg = &ProviderConfig{}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Transport{
		Provider:  provider,
		BaseURL:   baseURL,
		Client:    client,
		UserAgent: userAgent,
	}
}
