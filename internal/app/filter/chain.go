package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// Build creates a chain from the registered filters that enabled reports as on,
// configuring each with its settings.
func Build(enabled func(name string) bool, settings func(name string) map[string]any) (*Chain, error) {
	c := NewChain()
	for _, name := range Names() {
		if !enabled(name) {
			continue
		}
		f := registry[name]()
		if err := f.ValidateConfig(settings(name)); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for %s", name)
		}
		c.Add(f)
		zlog.Info().Msgf("filter enabled: %s", name)
	}
	return c, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the request.
// Filters are only applied if they declare they apply to the request's source.
func (c *Chain) Execute(ctx context.Context, req Request, q QueueView) Result {
	for _, f := range c.filters {
		if !f.AppliesTo(req.Source) {
			continue
		}

		result := f.Check(ctx, req, q)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
