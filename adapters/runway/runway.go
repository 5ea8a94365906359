// Package runway adapts Runway image-to-video served through the 302.ai relay.
package runway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/feitianbubu/vidgate/adapters"
	"github.com/feitianbubu/vidgate/model"
	"github.com/feitianbubu/vidgate/payload"
)

// DefaultBaseURL is the relay the Runway endpoints live under.
const DefaultBaseURL = "https://api.302.ai"

const fetchPath = "/runway/task/%s/fetch"

// Adapter implements adapters.Adapter for Runway.
type Adapter struct {
	transport *adapters.Transport
	apiKey    string
}

var _ adapters.Adapter = (*Adapter)(nil)

// New creates a Runway adapter.
func New(cfg *adapters.ProviderConfig) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("invalid configuration")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("runway API key is required")
	}
	return &Adapter{
		transport: adapters.NewTransport(model.ProviderRunway, cfg, DefaultBaseURL),
		apiKey:    apiKey,
	}, nil
}

// Name returns the provider name
func (a *Adapter) Name() model.Provider {
	return model.ProviderRunway
}

// SupportsExtend reports false; Runway has no extend endpoint here.
func (a *Adapter) SupportsExtend() bool {
	return false
}

// Submit posts the multipart payload. Success is any 2xx carrying a task id.
func (a *Adapter) Submit(ctx context.Context, p *payload.Payload, ep model.ResolvedEndpoint) (*adapters.Handle, error) {
	resp, err := a.transport.Do(ctx, adapters.Request{
		Method:      http.MethodPost,
		Path:        ep.Path,
		ContentType: p.ContentType,
		Body:        p.Body,
		Bearer:      a.apiKey,
	})
	if err != nil {
		return nil, err
	}

	taskID := adapters.FirstString(resp.JSON, "id", "task.id")
	if taskID == "" {
		return nil, a.transport.Reject(ep.Path, resp, "response carries no task id")
	}
	return &adapters.Handle{ProviderTaskID: taskID, Endpoint: ep, Body: resp.Body}, nil
}

// CheckStatus reads the task through the fetch endpoint, which is the only
// status source the relay exposes.
func (a *Adapter) CheckStatus(ctx context.Context, h *adapters.Handle) (*adapters.RawStatus, error) {
	res, err := a.FetchResult(ctx, h)
	if err != nil {
		return nil, err
	}
	return &adapters.RawStatus{
		ProviderTaskID: res.ProviderTaskID,
		RawStatus:      res.RawStatus,
		State:          res.State,
		Message:        res.Message,
		Body:           res.Body,
	}, nil
}

// FetchResult reads status and output.
func (a *Adapter) FetchResult(ctx context.Context, h *adapters.Handle) (*adapters.RawResult, error) {
	path := fmt.Sprintf(fetchPath, url.PathEscape(h.ProviderTaskID))
	resp, err := a.transport.Do(ctx, adapters.Request{
		Method: http.MethodGet,
		Path:   path,
		Bearer: a.apiKey,
	})
	if err != nil {
		return nil, err
	}

	raw := adapters.FirstString(resp.JSON, "status", "task.status")
	return &adapters.RawResult{
		ProviderTaskID: h.ProviderTaskID,
		RawStatus:      raw,
		State:          convertStatus(raw),
		VideoURL:       adapters.FirstString(resp.JSON, "output.0", "task.artifacts.0.url"),
		CoverURL:       adapters.FirstString(resp.JSON, "task.artifacts.0.previewUrls.0"),
		Message:        adapters.FirstString(resp.JSON, "failure", "task.error", "failureCode"),
		Body:           resp.Body,
	}, nil
}

func convertStatus(status string) adapters.State {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PENDING", "THROTTLED", "RUNNING":
		return adapters.StateProcessing
	case "SUCCEEDED":
		return adapters.StateSucceeded
	case "FAILED", "CANCELLED":
		return adapters.StateFailed
	default:
		return adapters.StateUnknown
	}
}
