// Provides a rate limited Config wrapper.

package recon

import (
	"context"
	"encoding/json"

	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/ksid"
	"golang.org/x/time/rate"
)

// Throttled limits the rate of BatchRecon calls of the wrapped Config.
type Throttled struct {
	Config
	limiter *rate.Limiter
}

// NewThrottled wraps c so that BatchRecon is called at most perSecond times
// per second. A non-positive rate returns c unchanged.
func NewThrottled(c Config, perSecond float64) Config {
	if perSecond <= 0 {
		return c
	}
	return &Throttled{Config: c, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// BatchRecon waits for the limiter before delegating.
func (t *Throttled) BatchRecon(ctx context.Context, jobs []Job, historyEntryID ksid.ID) ([]*grid.Recon, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.Config.BatchRecon(ctx, jobs, historyEntryID)
}

// MarshalJSON serializes the wrapped config.
func (t *Throttled) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Config)
}
