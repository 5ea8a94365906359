// Package catalog is the data-driven table of provider endpoints. Each row
// maps a (model family, modality, quality, duration, aspect class) key to
// the endpoint path and transport that serves it.
package catalog

import (
	"fmt"
	"sort"

	"github.com/feitianbubu/vidgate/model"
)

// Entry is one catalog row.
type Entry struct {
	Provider    model.Provider
	ModelFamily string
	Modality    model.Modality

	// Quality and Aspect may be empty to match any value.
	Quality model.Quality
	Aspect  model.AspectClass

	// Duration is the clip length in seconds; 0 means the provider fixes it
	// and the row only matches requests that leave duration unspecified.
	Duration int

	Path      string
	Transport model.TransportKind

	// Model and Mode are sent in the body by providers that select the
	// model version and quality there.
	Model string
	Mode  string

	// TailImage is set when the endpoint accepts a last-frame image.
	TailImage bool
}

// Matches reports whether the row serves the given key. A zero duration
// in the key only matches provider-fixed rows; callers that want
// tie-breaking filter with MatchesIgnoringDuration.
func (e Entry) Matches(family string, modality model.Modality, quality model.Quality, aspect model.AspectClass, duration int) bool {
	return e.MatchesIgnoringDuration(family, modality, quality, aspect) && e.Duration == duration
}

// MatchesIgnoringDuration is Matches without the duration component.
func (e Entry) MatchesIgnoringDuration(family string, modality model.Modality, quality model.Quality, aspect model.AspectClass) bool {
	if e.ModelFamily != family || e.Modality != modality {
		return false
	}
	if e.Quality != "" && e.Quality != quality {
		return false
	}
	if e.Aspect != model.AspectAny && e.Aspect != aspect {
		return false
	}
	return true
}

// Endpoint converts the row into the resolved endpoint for a request.
func (e Entry) Endpoint() model.ResolvedEndpoint {
	return model.ResolvedEndpoint{
		Provider:        e.Provider,
		ModelFamily:     e.ModelFamily,
		Path:            e.Path,
		Transport:       e.Transport,
		Model:           e.Model,
		Mode:            e.Mode,
		DurationSeconds: e.Duration,
	}
}

func (e Entry) overlaps(o Entry) bool {
	if e.ModelFamily != o.ModelFamily || e.Modality != o.Modality || e.Duration != o.Duration {
		return false
	}
	if e.Quality != "" && o.Quality != "" && e.Quality != o.Quality {
		return false
	}
	if e.Aspect != model.AspectAny && o.Aspect != model.AspectAny && e.Aspect != o.Aspect {
		return false
	}
	return true
}

func (e Entry) String() string {
	return fmt.Sprintf("%s/%s/%s/%ds/%s -> %s", e.ModelFamily, e.Modality, e.Quality, e.Duration, e.Aspect, e.Path)
}

// Catalog is an immutable set of rows. It is safe for concurrent use.
type Catalog struct {
	entries  []Entry
	families map[string]model.Provider
}

// New builds a catalog. Rows whose keys overlap are rejected so that every
// request resolves to at most one endpoint.
func New(entries ...Entry) (*Catalog, error) {
	c := &Catalog{families: make(map[string]model.Provider)}
	for i, e := range entries {
		switch {
		case e.ModelFamily == "" || e.Modality == "":
			return nil, fmt.Errorf("catalog row %d: family and modality are required", i)
		case e.Path == "":
			return nil, fmt.Errorf("catalog row %d: path is required", i)
		case e.Transport != model.TransportMultipart && e.Transport != model.TransportJSON:
			return nil, fmt.Errorf("catalog row %d: unknown transport %q", i, e.Transport)
		}
		if p, ok := c.families[e.ModelFamily]; ok && p != e.Provider {
			return nil, fmt.Errorf("catalog row %d: family %s served by both %s and %s", i, e.ModelFamily, p, e.Provider)
		}
		for _, prev := range c.entries {
			if prev.overlaps(e) {
				return nil, fmt.Errorf("catalog rows overlap: %s and %s", prev, e)
			}
		}
		c.families[e.ModelFamily] = e.Provider
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// MustNew is New that panics on an invalid table.
func MustNew(entries ...Entry) *Catalog {
	c, err := New(entries...)
	if err != nil {
		panic(err)
	}
	return c
}

// Entries returns a copy of all rows in declaration order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Candidates returns the rows matching the key regardless of duration.
func (c *Catalog) Candidates(family string, modality model.Modality, quality model.Quality, aspect model.AspectClass) []Entry {
	var out []Entry
	for _, e := range c.entries {
		if e.MatchesIgnoringDuration(family, modality, quality, aspect) {
			out = append(out, e)
		}
	}
	return out
}

// Provider returns the provider serving a model family.
func (c *Catalog) Provider(family string) (model.Provider, bool) {
	p, ok := c.families[family]
	return p, ok
}

// Families returns the known model families, sorted.
func (c *Catalog) Families() []string {
	out := make([]string, 0, len(c.families))
	for f := range c.families {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// HasModality reports whether any row serves the family with the modality.
func (c *Catalog) HasModality(family string, modality model.Modality) bool {
	for _, e := range c.entries {
		if e.ModelFamily == family && e.Modality == modality {
			return true
		}
	}
	return false
}
