// Package content loads and validates boss-challenge content.
package content

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/stemforge/stem-forge/internal/domain"
)

// Catalog holds the active challenge list.
type Catalog struct {
	source Source

	mu         sync.RWMutex
	challenges []domain.Challenge
	fromSource bool
}

// NewCatalog creates a catalog that starts with the built-in challenges.
// A nil source keeps the built-in list forever.
func NewCatalog(source Source) *Catalog {
	return &Catalog{source: source, challenges: Builtin()}
}

// Load fetches and validates content from the source. On any failure the
// built-in list is used and the error is returned for reporting.
func (c *Catalog) Load(ctx context.Context) error {
	if c.source == nil {
		c.set(Builtin(), false)
		return nil
	}

	challenges, err := c.source.Fetch(ctx)
	if err == nil {
		err = Validate(challenges)
	}
	if err != nil {
		slog.Warn("Failed to load challenges, using built-in list",
			"source", c.source.Describe(),
			"error", err,
		)
		c.set(Builtin(), false)
		return err
	}

	slog.Info("Challenges loaded", "source", c.source.Describe(), "count", len(challenges))
	c.set(challenges, true)
	return nil
}

func (c *Catalog) set(challenges []domain.Challenge, fromSource bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.challenges = challenges
	c.fromSource = fromSource
}

// FromSource reports whether the active list came from the configured source.
func (c *Catalog) FromSource() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fromSource
}

// List returns every challenge, marking those in completed as done.
func (c *Catalog) List(completed map[string]bool) []domain.Challenge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := slices.Clone(c.challenges)
	for i := range out {
		if completed[out[i].ID] {
			out[i].Completed = true
		}
	}
	return out
}

// Get returns a copy of the challenge with the given id.
func (c *Catalog) Get(id string) (*domain.Challenge, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.challenges {
		if ch.ID == id {
			return &ch, true
		}
	}
	return nil, false
}
