// Package recon matches cell values against a reconciliation service
// through a batch job interface.
package recon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/ksid"
)

// ErrUnknownMode is returned by ParseConfig for an unregistered mode.
var ErrUnknownMode = errors.New("unknown recon mode")

// Job is the unit of work for one distinct lookup. Jobs with the same Key
// are performed once.
type Job interface {
	Key() string
}

// Config is a reconciliation service binding.
type Config interface {
	// Mode is the "mode" field identifying the implementation.
	Mode() string
	// Service identifies the service in produced recons.
	Service() string
	// BatchSize is the number of jobs sent per BatchRecon call.
	BatchSize() int
	CreateJob(g *grid.Grid, rowIndex int, row *grid.Row, columnName string, cell *grid.Cell) Job
	// BatchRecon returns one recon per job, in order. A nil recon leaves the
	// cells of that job unreconciled.
	BatchRecon(ctx context.Context, jobs []Job, historyEntryID ksid.ID) ([]*grid.Recon, error)
}

var (
	modesMu sync.RWMutex
	modes   = map[string]func(raw json.RawMessage) (Config, error){}
)

// RegisterMode makes a config mode decodable by ParseConfig.
func RegisterMode(mode string, decode func(raw json.RawMessage) (Config, error)) {
	modesMu.Lock()
	defer modesMu.Unlock()
	if _, ok := modes[mode]; ok {
		panic("recon: mode " + mode + " registered twice")
	}
	modes[mode] = decode
}

// ParseConfig decodes a config by its "mode" field.
func ParseConfig(raw json.RawMessage) (Config, error) {
	var head struct {
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("recon config: %w", err)
	}
	modesMu.RLock()
	decode := modes[head.Mode]
	modesMu.RUnlock()
	if decode == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownMode, head.Mode)
	}
	return decode(raw)
}
