package vidgate

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/feitianbubu/vidgate/adapters"
	"github.com/feitianbubu/vidgate/config"
	"github.com/feitianbubu/vidgate/internal/metrics"
	"github.com/feitianbubu/vidgate/model"
	"github.com/feitianbubu/vidgate/payload"
)

// adapterWrapper adds metrics, logging and an optional circuit breaker around
// an adapters.Adapter. It never retries.
type adapterWrapper struct {
	adapter adapters.Adapter
	breaker *gobreaker.CircuitBreaker[any]
	metrics *metrics.Metrics
	logger  *zap.Logger
}

var _ adapters.Adapter = (*adapterWrapper)(nil)

func newAdapterWrapper(a adapters.Adapter, bc *config.BreakerConfig, m *metrics.Metrics, logger *zap.Logger) *adapterWrapper {
	w := &adapterWrapper{
		adapter: a,
		metrics: m,
		logger:  logger.With(zap.String("provider", a.Name().String())),
	}
	if bc != nil && bc.Enabled {
		w.breaker = gobreaker.NewCircuitBreaker[any](w.breakerSettings(*bc))
	}
	return w
}

func (w *adapterWrapper) breakerSettings(bc config.BreakerConfig) gobreaker.Settings {
	threshold := bc.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.Settings{
		Name:        w.adapter.Name().String(),
		MaxRequests: bc.SuccessThreshold,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: countsAsHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.metrics.SetBreakerState(name, int(to))
			w.logger.Warn("provider breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
}

// abandonedError marks a call that failed because its caller gave up. It
// says nothing about the provider.
type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string { return e.err.Error() }
func (e *abandonedError) Unwrap() error { return e.err }

// countsAsHealthy treats business rejections and abandoned calls as a
// healthy provider. Only unreachable providers and 5xx answers trip the
// breaker.
func countsAsHealthy(err error) bool {
	if err == nil {
		return true
	}
	var abandoned *abandonedError
	if errors.As(err, &abandoned) {
		return true
	}
	var gwErr *model.Error
	if !errors.As(err, &gwErr) {
		return false
	}
	switch gwErr.Kind {
	case model.KindTransport:
		return false
	case model.KindProviderRejection:
		return gwErr.StatusCode < 500
	}
	return true
}

// Name returns the provider name
func (w *adapterWrapper) Name() model.Provider {
	return w.adapter.Name()
}

// SupportsExtend reports whether the wrapped provider can extend videos.
func (w *adapterWrapper) SupportsExtend() bool {
	return w.adapter.SupportsExtend()
}

// Submit creates a provider task.
func (w *adapterWrapper) Submit(ctx context.Context, p *payload.Payload, ep model.ResolvedEndpoint) (*adapters.Handle, error) {
	res, err := w.call(ctx, "submit", ep.String(), func() (any, error) {
		return w.adapter.Submit(ctx, p, ep)
	})
	if err != nil {
		return nil, err
	}
	return res.(*adapters.Handle), nil
}

// CheckStatus reads the provider status of a task.
func (w *adapterWrapper) CheckStatus(ctx context.Context, h *adapters.Handle) (*adapters.RawStatus, error) {
	res, err := w.call(ctx, "status", w.endpoint(h), func() (any, error) {
		return w.adapter.CheckStatus(ctx, h)
	})
	if err != nil {
		return nil, err
	}
	return res.(*adapters.RawStatus), nil
}

// FetchResult reads the provider status and artifacts of a task.
func (w *adapterWrapper) FetchResult(ctx context.Context, h *adapters.Handle) (*adapters.RawResult, error) {
	res, err := w.call(ctx, "fetch", w.endpoint(h), func() (any, error) {
		return w.adapter.FetchResult(ctx, h)
	})
	if err != nil {
		return nil, err
	}
	return res.(*adapters.RawResult), nil
}

func (w *adapterWrapper) endpoint(h *adapters.Handle) string {
	if h == nil {
		return w.adapter.Name().String()
	}
	return w.adapter.Name().String() + ":" + h.ProviderTaskID
}

func (w *adapterWrapper) call(ctx context.Context, op, endpoint string, fn func() (any, error)) (any, error) {
	provider := w.adapter.Name().String()
	start := time.Now()

	var (
		res any
		err error
	)
	if w.breaker != nil {
		res, err = w.breaker.Execute(func() (any, error) {
			res, err := fn()
			if err != nil && ctx.Err() != nil {
				return nil, &abandonedError{err: err}
			}
			return res, err
		})
		var abandoned *abandonedError
		if errors.As(err, &abandoned) {
			err = abandoned.err
		}
	} else {
		res, err = fn()
	}
	elapsed := time.Since(start)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		w.metrics.RecordProviderRequest(provider, op, metrics.OutcomeOpen, elapsed)
		w.logger.Warn("provider call short-circuited",
			zap.String("operation", op),
			zap.String("endpoint", endpoint),
		)
		return nil, model.NewTransportError(w.adapter.Name(), endpoint,
			errors.Wrap(model.ErrProviderUnavailable, err.Error()))
	}

	result := outcome(err)
	if err != nil && ctx.Err() != nil {
		result = metrics.OutcomeCanceled
	}
	w.metrics.RecordProviderRequest(provider, op, result, elapsed)
	if err != nil {
		w.logger.Warn("provider call failed",
			zap.String("operation", op),
			zap.String("endpoint", endpoint),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}
	w.logger.Debug("provider call",
		zap.String("operation", op),
		zap.String("endpoint", endpoint),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

func outcome(err error) string {
	switch model.KindOf(err) {
	case "":
		if err != nil {
			return metrics.OutcomeTransport
		}
		return metrics.OutcomeSuccess
	case model.KindProviderRejection:
		return metrics.OutcomeRejected
	case model.KindTransport:
		return metrics.OutcomeTransport
	default:
		return metrics.OutcomeLocal
	}
}
