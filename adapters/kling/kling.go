// Package kling adapts the Kling models served through the 302.ai relay.
package kling

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/feitianbubu/vidgate/adapters"
	"github.com/feitianbubu/vidgate/model"
	"github.com/feitianbubu/vidgate/payload"
)

// DefaultBaseURL is the relay the Kling endpoints live under.
const DefaultBaseURL = "https://api.302.ai"

const (
	taskPath  = "/klingai/task/%s"
	fetchPath = "/klingai/task/%s/fetch"
)

// Adapter implements adapters.Adapter for Kling.
type Adapter struct {
	transport  *adapters.Transport
	credential *credential
}

var _ adapters.Adapter = (*Adapter)(nil)

// New creates a Kling adapter. cfg.APIKey is either a relay key or an
// "access_key,secret_key" pair.
func New(cfg *adapters.ProviderConfig) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("invalid configuration")
	}
	cred, err := newCredential(cfg.APIKey, cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		transport:  adapters.NewTransport(model.ProviderKling, cfg, DefaultBaseURL),
		credential: cred,
	}, nil
}

// Name returns the provider name
func (a *Adapter) Name() model.Provider {
	return model.ProviderKling
}

// SupportsExtend reports that finished Kling videos can be extended.
func (a *Adapter) SupportsExtend() bool {
	return true
}

// Submit posts the payload to the resolved endpoint and returns the
// provider task id.
func (a *Adapter) Submit(ctx context.Context, p *payload.Payload, ep model.ResolvedEndpoint) (*adapters.Handle, error) {
	resp, err := a.do(ctx, http.MethodPost, ep.Path, p)
	if err != nil {
		return nil, err
	}
	if !succeeded(resp) {
		return nil, a.transport.Reject(ep.Path, resp, "")
	}

	taskID := adapters.FirstString(resp.JSON, "data.task.id", "data.task_id")
	if taskID == "" {
		return nil, a.transport.Reject(ep.Path, resp, "response carries no task id")
	}

	return &adapters.Handle{ProviderTaskID: taskID, Endpoint: ep, Body: resp.Body}, nil
}

// CheckStatus reads the task status.
func (a *Adapter) CheckStatus(ctx context.Context, h *adapters.Handle) (*adapters.RawStatus, error) {
	path := fmt.Sprintf(taskPath, url.PathEscape(h.ProviderTaskID))
	resp, err := a.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if !succeeded(resp) {
		return nil, a.transport.Reject(path, resp, "")
	}

	raw := adapters.FirstString(resp.JSON, "data.status", "data.task.status")
	return &adapters.RawStatus{
		ProviderTaskID: h.ProviderTaskID,
		RawStatus:      raw,
		State:          convertStatus(raw),
		Message:        failureMessage(resp),
		Body:           resp.Body,
	}, nil
}

// FetchResult reads status and produced artifacts.
func (a *Adapter) FetchResult(ctx context.Context, h *adapters.Handle) (*adapters.RawResult, error) {
	path := fmt.Sprintf(fetchPath, url.PathEscape(h.ProviderTaskID))
	resp, err := a.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if !succeeded(resp) {
		return nil, a.transport.Reject(path, resp, "")
	}

	raw := adapters.FirstString(resp.JSON, "data.status", "data.task.status")
	return &adapters.RawResult{
		ProviderTaskID: h.ProviderTaskID,
		RawStatus:      raw,
		State:          convertStatus(raw),
		VideoURL:       resp.JSON.Get("data.works.0.resource.resource").String(),
		CoverURL:       resp.JSON.Get("data.works.0.cover.resource").String(),
		Message:        failureMessage(resp),
		Body:           resp.Body,
	}, nil
}

func (a *Adapter) do(ctx context.Context, method, path string, p *payload.Payload) (*adapters.Response, error) {
	token, err := a.credential.bearer()
	if err != nil {
		return nil, model.NewConfigurationError(model.ProviderKling, "kling:"+path, errors.Wrap(err, "failed to create JWT token"))
	}

	req := adapters.Request{Method: method, Path: path, Bearer: token}
	if p != nil {
		req.ContentType = p.ContentType
		req.Body = p.Body
	}
	return a.transport.Do(ctx, req)
}

// succeeded is the relay's success discriminator.
func succeeded(resp *adapters.Response) bool {
	return resp.JSON.Get("result").Int() == 1
}

func failureMessage(resp *adapters.Response) string {
	return adapters.FirstString(resp.JSON, "data.task.fail_msg", "data.fail_msg", "data.task_status_msg")
}

// convertStatus converts Kling status to adapter state
func convertStatus(status string) adapters.State {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "5", "10", "submitted", "queued", "pending", "processing":
		return adapters.StateProcessing
	case "99", "succeed", "success", "completed":
		return adapters.StateSucceeded
	case "50", "failed", "fail":
		return adapters.StateFailed
	default:
		return adapters.StateUnknown
	}
}
