// Package resolver maps an abstract generation request onto exactly one
// catalog endpoint. It performs no I/O.
package resolver

import (
	"fmt"

	"github.com/feitianbubu/vidgate/catalog"
	"github.com/feitianbubu/vidgate/model"
)

// preferredDuration is chosen when the caller leaves the duration open.
const preferredDuration = 10

// Resolver resolves requests against a catalog.
type Resolver struct {
	catalog *catalog.Catalog
}

// New creates a resolver. A nil catalog selects catalog.Default().
func New(c *catalog.Catalog) *Resolver {
	if c == nil {
		c = catalog.Default()
	}
	return &Resolver{catalog: c}
}

// Catalog returns the table the resolver reads.
func (r *Resolver) Catalog() *catalog.Catalog {
	return r.catalog
}

// Resolve returns the endpoint serving req. The result depends only on req
// and the catalog.
func (r *Resolver) Resolve(req *model.GenerationRequest) (model.ResolvedEndpoint, error) {
	if req == nil {
		return model.ResolvedEndpoint{}, model.NewValidationError("request", "request cannot be nil")
	}

	aspect, err := model.ClassifyAspectRatio(req.AspectRatio)
	if err != nil {
		return model.ResolvedEndpoint{}, err
	}

	if _, ok := r.catalog.Provider(req.ModelFamily); !ok {
		return model.ResolvedEndpoint{}, model.NewUnsupportedCombinationError(
			fmt.Sprintf("unknown model family %q", req.ModelFamily))
	}

	quality := req.EffectiveQuality()
	candidates := r.catalog.Candidates(req.ModelFamily, req.Modality, quality, aspect)
	if len(candidates) == 0 {
		return model.ResolvedEndpoint{}, model.NewUnsupportedCombinationError(
			fmt.Sprintf("%s does not support %s at %s quality with aspect ratio %s",
				req.ModelFamily, req.Modality, quality, req.EffectiveAspectRatio()))
	}

	entry, ok := pickDuration(candidates, req.DurationSeconds)
	if !ok {
		return model.ResolvedEndpoint{}, model.NewUnsupportedCombinationError(
			fmt.Sprintf("%s %s at %s quality has no %ds endpoint for aspect ratio %s",
				req.ModelFamily, req.Modality, quality, req.DurationSeconds, req.EffectiveAspectRatio()))
	}

	if req.TailImage != nil && !entry.TailImage {
		return model.ResolvedEndpoint{}, model.NewUnsupportedCombinationError(
			fmt.Sprintf("%s does not accept a tail image", entry.Path))
	}

	return entry.Endpoint(), nil
}

// pickDuration applies the duration rule: an explicit duration must match a
// row exactly; an open duration takes the 10s row if present, otherwise the
// shortest row.
func pickDuration(candidates []catalog.Entry, duration int) (catalog.Entry, bool) {
	if duration != 0 {
		for _, e := range candidates {
			if e.Duration == duration {
				return e, true
			}
		}
		return catalog.Entry{}, false
	}

	for _, e := range candidates {
		if e.Duration == preferredDuration {
			return e, true
		}
	}
	best := candidates[0]
	for _, e := range candidates[1:] {
		if e.Duration < best.Duration {
			best = e
		}
	}
	return best, true
}
