package adapters

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/feitianbubu/vidgate/model"
)

// maxBodyInError bounds how much of a response body is quoted in messages.
const maxBodyInError = 512

// Transport performs one outbound request per call and classifies failures
// into transport and provider_rejection errors.
type Transport struct {
	Provider  model.Provider
	BaseURL   string
	Client    *http.Client
	UserAgent string
}

// Response is a fully read 2xx provider response.
type Response struct {
	StatusCode int
	Body       []byte
	JSON       gjson.Result
}

// Request describes one provider call.
type Request struct {
	Method      string
	Path        string
	ContentType string
	Body        []byte
	Bearer      string
}

// Do sends req. Network and read failures are transport errors; non-2xx
// statuses and non-JSON bodies are provider rejections. Both carry the raw
// body when one was read.
func (t *Transport) Do(ctx context.Context, req Request) (*Response, error) {
	endpoint := string(t.Provider) + ":" + req.Path
	url := strings.TrimRight(t.BaseURL, "/") + req.Path

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, model.NewTransportError(t.Provider, endpoint, errors.Wrap(err, "failed to create request"))
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Bearer)
	}
	httpReq.Header.Set("User-Agent", t.UserAgent)

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return nil, model.NewTransportError(t.Provider, endpoint, errors.Wrapf(err, "%s %s", req.Method, url))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		terr := model.NewTransportError(t.Provider, endpoint, errors.Wrap(err, "failed to read response body"))
		terr.StatusCode = resp.StatusCode
		terr.Body = respBody
		return nil, terr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewProviderRejectionError(t.Provider, endpoint, resp.StatusCode, respBody,
			errorMessage(gjson.ParseBytes(respBody), resp.Status))
	}

	if !gjson.ValidBytes(respBody) {
		rej := model.NewProviderRejectionError(t.Provider, endpoint, resp.StatusCode, respBody, "response is not valid JSON")
		rej.Err = errors.Errorf("body: %s", Truncate(respBody))
		return nil, rej
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		JSON:       gjson.ParseBytes(respBody),
	}, nil
}

// Reject builds a provider_rejection for a 2xx response whose success
// discriminator failed.
func (t *Transport) Reject(path string, resp *Response, message string) error {
	if message == "" {
		message = errorMessage(resp.JSON, "")
	}
	return model.NewProviderRejectionError(t.Provider, string(t.Provider)+":"+path, resp.StatusCode, resp.Body, message)
}

// FirstString returns the first non-empty string found at paths.
func FirstString(res gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := res.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func errorMessage(res gjson.Result, fallback string) string {
	if msg := FirstString(res, "message", "msg", "error.message", "error", "detail"); msg != "" {
		return msg
	}
	return fallback
}

// Truncate shortens a response body for log and error messages.
func Truncate(body []byte) string {
	if len(body) <= maxBodyInError {
		return string(body)
	}
	return string(body[:maxBodyInError]) + "..."
}
