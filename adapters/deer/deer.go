// Package deer adapts the DeerAPI Kling text-to-video service.
package deer

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

// DefaultBaseURL is the DeerAPI origin.
const DefaultBaseURL = "https://api.deerapi.com"

const tasksPath = "/api/v1/tasks/%s"

// Adapter implements adapters.Adapter for DeerAPI.
type Adapter struct {
	transport *adapters.Transport
	apiKey    string
}

var _ adapters.Adapter = (*Adapter)(nil)

// New creates a DeerAPI adapter.
func New(cfg *adapters.ProviderConfig) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("invalid configuration")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("deer API key is required")
	}
	return &Adapter{
		transport: adapters.NewTransport(model.ProviderDeer, cfg, DefaultBaseURL),
		apiKey:    apiKey,
	}, nil
}

// Name returns the provider name
func (a *Adapter) Name() model.Provider {
	return model.ProviderDeer
}

// SupportsExtend reports false.
func (a *Adapter) SupportsExtend() bool {
	return false
}

// Submit posts the JSON payload.
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
	if !succeeded(resp) {
		return nil, a.transport.Reject(ep.Path, resp, "")
	}

	taskID := resp.JSON.Get("data.task_id").String()
	if taskID == "" {
		return nil, a.transport.Reject(ep.Path, resp, "response carries no task id")
	}
	return &adapters.Handle{ProviderTaskID: taskID, Endpoint: ep, Body: resp.Body}, nil
}

// CheckStatus reads the task status.
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

// FetchResult reads status and the produced video.
func (a *Adapter) FetchResult(ctx context.Context, h *adapters.Handle) (*adapters.RawResult, error) {
	path := fmt.Sprintf(tasksPath, url.PathEscape(h.ProviderTaskID))
	resp, err := a.transport.Do(ctx, adapters.Request{
		Method: http.MethodGet,
		Path:   path,
		Bearer: a.apiKey,
	})
	if err != nil {
		return nil, err
	}
	if !succeeded(resp) {
		return nil, a.transport.Reject(path, resp, "")
	}

	raw := resp.JSON.Get("data.task_status").String()
	return &adapters.RawResult{
		ProviderTaskID: h.ProviderTaskID,
		RawStatus:      raw,
		State:          convertStatus(raw),
		VideoURL:       resp.JSON.Get("data.task_result.videos.0.url").String(),
		Message:        resp.JSON.Get("data.task_status_msg").String(),
		Body:           resp.Body,
	}, nil
}

// succeeded is DeerAPI's success discriminator.
func succeeded(resp *adapters.Response) bool {
	code := resp.JSON.Get("code")
	return code.Exists() && code.Int() == 0
}

func convertStatus(status string) adapters.State {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "submitted", "processing":
		return adapters.StateProcessing
	case "succeed":
		return adapters.StateSucceeded
	case "failed":
		return adapters.StateFailed
	default:
		return adapters.StateUnknown
	}
}
