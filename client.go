// Package vidgate is a multi-provider video generation task gateway.
//
// A Client turns an abstract GenerationRequest into a provider endpoint,
// builds the provider's payload, submits it and then normalizes the
// provider's status vocabulary into one task lifecycle:
//
//	PENDING -> SUBMITTED -> PROCESSING -> COMPLETED | FAILED
//
// Tasks are persisted through a TaskStore. The gateway never retries a
// provider call; callers poll on their own cadence or use WaitForCompletion.
package vidgate

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/feitianbubu/vidgate/adapters"
	"github.com/feitianbubu/vidgate/catalog"
	"github.com/feitianbubu/vidgate/config"
	"github.com/feitianbubu/vidgate/internal/metrics"
	"github.com/feitianbubu/vidgate/model"
	"github.com/feitianbubu/vidgate/payload"
	"github.com/feitianbubu/vidgate/resolver"
	"github.com/feitianbubu/vidgate/store/memory"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultPollLockTTL  = 30 * time.Second
)

// Client is the main client for video generation
type Client struct {
	catalog  *catalog.Catalog
	resolver *resolver.Resolver
	adapters map[model.Provider]adapters.Adapter
	store    TaskStore
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	pollMode     string
	locker       Locker
	lockTTL      time.Duration
	pollInterval time.Duration
	polls        singleflight.Group

	rawAdapters       map[model.Provider]adapters.Adapter
	breaker           *config.BreakerConfig
	metricsNamespace  string
	metricsRegisterer prometheus.Registerer
	closers           []func() error
}

// NewClient creates a new video generation client. Without WithAdapters no
// provider is reachable.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		store:        memory.New(),
		logger:       zap.NewNop(),
		now:          time.Now,
		pollMode:     config.PollSerializationNone,
		lockTTL:      defaultPollLockTTL,
		pollInterval: defaultPollInterval,
		rawAdapters:  make(map[model.Provider]adapters.Adapter),
	}
	for _, opt := range opts {
		opt(c)
	}

	switch c.pollMode {
	case config.PollSerializationNone, config.PollSerializationLocal:
	case config.PollSerializationRedis:
		if c.locker == nil {
			return nil, ErrNoLocker
		}
	default:
		return nil, fmt.Errorf("invalid poll serialization %q", c.pollMode)
	}

	c.resolver = resolver.New(c.catalog)
	c.catalog = c.resolver.Catalog()
	c.metrics = metrics.New(c.metricsNamespace, c.metricsRegisterer)

	c.adapters = make(map[model.Provider]adapters.Adapter, len(c.rawAdapters))
	for name, a := range c.rawAdapters {
		c.adapters[name] = newAdapterWrapper(a, c.breaker, c.metrics, c.logger)
	}
	return c, nil
}

// Close releases resources opened by NewFromConfig.
func (c *Client) Close() error {
	var first error
	for _, fn := range c.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}

// Catalog returns the endpoint catalog the client resolves against.
func (c *Client) Catalog() *catalog.Catalog {
	return c.catalog
}

// Providers returns the providers with a registered adapter.
func (c *Client) Providers() []model.Provider {
	out := make([]model.Provider, 0, len(c.adapters))
	for _, p := range []model.Provider{model.ProviderKling, model.ProviderRunway, model.ProviderDeer} {
		if _, ok := c.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Submit validates req, resolves its endpoint and submits it to the
// provider. The task is persisted only after the provider accepted it.
func (c *Client) Submit(ctx context.Context, req *GenerationRequest) (*Task, error) {
	if req == nil {
		return nil, model.NewValidationError("request", "request cannot be nil")
	}
	if req.Modality == model.ModalityVideoExtend {
		return nil, model.NewValidationError("modality", "video extension goes through Extend")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return c.submit(ctx, req)
}

// Extend continues a completed video. The source task must be COMPLETED and
// its provider must support extension; otherwise no request is made.
func (c *Client) Extend(ctx context.Context, localTaskID, prompt string, opts ExtendOptions) (*Task, error) {
	source, err := c.store.Get(ctx, localTaskID)
	if err != nil {
		return nil, err
	}
	if source.Status != model.StatusCompleted {
		return nil, model.NewInvalidExtendSourceError(localTaskID,
			fmt.Sprintf("status is %s, not %s", source.Status, model.StatusCompleted))
	}
	adapter, ok := c.adapters[source.Provider]
	if !ok || !adapter.SupportsExtend() {
		return nil, model.NewInvalidExtendSourceError(localTaskID,
			fmt.Sprintf("provider %s does not support extension", source.Provider))
	}
	if !c.catalog.HasModality(source.ModelFamily, model.ModalityVideoExtend) {
		return nil, model.NewInvalidExtendSourceError(localTaskID,
			fmt.Sprintf("model family %s has no extend endpoint", source.ModelFamily))
	}
	if source.ProviderTaskID == "" {
		return nil, model.NewInvalidExtendSourceError(localTaskID, "no provider task id")
	}

	req := &model.GenerationRequest{
		Modality:       model.ModalityVideoExtend,
		ModelFamily:    source.ModelFamily,
		Prompt:         prompt,
		NegativePrompt: opts.NegativePrompt,
		ExtendOfTaskID: source.ProviderTaskID,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c.logger.Info("extending task",
		zap.String("local_task_id", localTaskID),
		zap.String("provider_task_id", source.ProviderTaskID),
	)
	return c.submit(ctx, req)
}

func (c *Client) submit(ctx context.Context, req *model.GenerationRequest) (*Task, error) {
	ep, err := c.resolver.Resolve(req)
	if err != nil {
		return nil, err
	}
	adapter, err := c.adapterFor(ep.Provider)
	if err != nil {
		return nil, err
	}

	p, err := payload.Build(req, ep)
	if err != nil {
		return nil, err
	}
	if ce := c.logger.Check(zap.DebugLevel, "built payload"); ce != nil {
		if d, err := payload.Decode(p); err == nil {
			ce.Write(zap.String("endpoint", ep.String()), zap.Stringer("payload", d))
		}
	}

	localID, err := c.store.NewTaskID(ctx)
	if err != nil {
		return nil, model.NewStorageError("new task id", err)
	}
	now := c.now()
	task := &model.Task{
		LocalTaskID: localID,
		Provider:    ep.Provider,
		ModelFamily: ep.ModelFamily,
		Modality:    req.Modality,
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	logger := c.logger.With(
		zap.String("local_task_id", localID),
		zap.String("provider", ep.Provider.String()),
		zap.String("endpoint", ep.String()),
	)

	handle, err := adapter.Submit(ctx, p, ep)
	if err != nil {
		logger.Warn("submit failed", zap.Error(err))
		return nil, err
	}

	task.ProviderTaskID = handle.ProviderTaskID
	if err := task.Transition(model.StatusSubmitted, c.now()); err != nil {
		return nil, err
	}
	if err := c.store.Create(ctx, task); err != nil {
		// the provider task exists but nothing points at it
		logger.Error("persist submitted task failed",
			zap.String("provider_task_id", handle.ProviderTaskID),
			zap.Error(err),
		)
		return nil, err
	}

	c.metrics.RecordTransition(ep.Provider.String(), string(model.StatusSubmitted))
	logger.Info("task submitted", zap.String("provider_task_id", handle.ProviderTaskID))
	return task.Clone(), nil
}

// Get returns the stored task without contacting the provider.
func (c *Client) Get(ctx context.Context, localTaskID string) (*Task, error) {
	return c.store.Get(ctx, localTaskID)
}

// Poll refreshes a task from its provider with at most one provider call.
// Terminal tasks are returned as stored. A failed poll leaves the stored
// task untouched.
func (c *Client) Poll(ctx context.Context, localTaskID string) (*Task, error) {
	task, err := c.store.Get(ctx, localTaskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return task, nil
	}

	switch c.pollMode {
	case config.PollSerializationLocal:
		// the shared refresh outlives any single caller; its provider call
		// is bounded by the HTTP client timeout
		ch := c.polls.DoChan(localTaskID, func() (any, error) {
			return c.refresh(context.WithoutCancel(ctx), task)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			return res.Val.(*model.Task).Clone(), nil
		}

	case config.PollSerializationRedis:
		unlock, ok, err := c.locker.TryLock(ctx, localTaskID, c.lockTTL)
		if err != nil {
			return nil, model.NewStorageError("acquire poll lock", err)
		}
		if !ok {
			c.logger.Debug("poll in progress elsewhere", zap.String("local_task_id", localTaskID))
			return task, nil
		}
		defer unlock()

		// the previous holder may have moved the task on
		task, err = c.store.Get(ctx, localTaskID)
		if err != nil {
			return nil, err
		}
		if task.Status.IsTerminal() {
			return task, nil
		}
		return c.refresh(ctx, task)

	default:
		return c.refresh(ctx, task)
	}
}

// refresh fetches the provider view of task, applies it and persists it.
func (c *Client) refresh(ctx context.Context, task *model.Task) (*model.Task, error) {
	adapter, err := c.adapterFor(task.Provider)
	if err != nil {
		return nil, err
	}

	logger := c.logger.With(
		zap.String("local_task_id", task.LocalTaskID),
		zap.String("provider_task_id", task.ProviderTaskID),
		zap.String("provider", task.Provider.String()),
	)

	res, err := adapter.FetchResult(ctx, &adapters.Handle{ProviderTaskID: task.ProviderTaskID})
	if err != nil {
		return nil, err
	}

	next := task.Clone()
	if err := c.apply(next, res, logger); err != nil {
		return nil, err
	}
	if err := c.store.Update(ctx, next); err != nil {
		return nil, err
	}

	if next.Status != task.Status {
		c.metrics.RecordTransition(next.Provider.String(), string(next.Status))
		logger.Info("task status changed",
			zap.String("from", string(task.Status)),
			zap.String("status", string(next.Status)),
		)
	}
	return next, nil
}

// apply maps a provider reading onto the task state machine.
func (c *Client) apply(task *model.Task, res *adapters.RawResult, logger *zap.Logger) error {
	now := c.now()
	switch res.State {
	case adapters.StateSucceeded:
		if res.VideoURL == "" {
			logger.Warn("provider reported success without a video url",
				zap.String("raw_status", res.RawStatus))
			return task.Transition(model.StatusProcessing, now)
		}
		return task.Complete(res.VideoURL, res.CoverURL, now)

	case adapters.StateFailed:
		detail := res.Message
		if detail == "" {
			detail = "provider reported status " + res.RawStatus
		}
		return task.Fail(detail, now)

	case adapters.StateProcessing:
		return task.Transition(model.StatusProcessing, now)

	default:
		logger.Warn("unrecognized provider status, treating as processing",
			zap.String("raw_status", res.RawStatus))
		return task.Transition(model.StatusProcessing, now)
	}
}

// CheckStatus asks the provider for the task status without persisting
// anything.
func (c *Client) CheckStatus(ctx context.Context, localTaskID string) (TaskStatus, error) {
	task, err := c.store.Get(ctx, localTaskID)
	if err != nil {
		return "", err
	}
	if task.Status.IsTerminal() {
		return task.Status, nil
	}
	adapter, err := c.adapterFor(task.Provider)
	if err != nil {
		return "", err
	}

	st, err := adapter.CheckStatus(ctx, &adapters.Handle{ProviderTaskID: task.ProviderTaskID})
	if err != nil {
		return "", err
	}
	switch st.State {
	case adapters.StateSucceeded:
		return model.StatusCompleted, nil
	case adapters.StateFailed:
		return model.StatusFailed, nil
	case adapters.StateProcessing:
		return model.StatusProcessing, nil
	default:
		c.logger.Warn("unrecognized provider status, treating as processing",
			zap.String("local_task_id", localTaskID),
			zap.String("raw_status", st.RawStatus),
		)
		return model.StatusProcessing, nil
	}
}

// WaitForCompletion polls the task every interval until it reaches a
// terminal state, a poll fails or ctx is done. A zero interval uses the
// configured default.
func (c *Client) WaitForCompletion(ctx context.Context, localTaskID string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = c.pollInterval
	}

	task, err := c.Poll(ctx, localTaskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return task, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			task, err := c.Poll(ctx, localTaskID)
			if err != nil {
				return nil, err
			}
			if task.Status.IsTerminal() {
				return task, nil
			}
		}
	}
}

func (c *Client) adapterFor(p model.Provider) (adapters.Adapter, error) {
	a, ok := c.adapters[p]
	if !ok {
		return nil, model.NewUnsupportedCombinationError(fmt.Sprintf("provider %s is not configured", p))
	}
	return a, nil
}
