// Provides an in-memory dictionary matcher.

package recon

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/maruel/facetdb/internal/eval"
	"github.com/maruel/facetdb/internal/grid"
	"github.com/maruel/ksid"
)

// DictionaryMode is the mode of DictionaryConfig.
const DictionaryMode = "dictionary"

// DictionaryConfig matches cell text against a fixed table of candidates.
type DictionaryConfig struct {
	ServiceName   string                           `json:"service"`
	Entries       map[string][]grid.ReconCandidate `json:"entries"`
	CaseSensitive bool                             `json:"caseSensitive,omitempty"`
	// AutoMatch judges a cell matched when its best candidate scores
	// strictly above the runner-up.
	AutoMatch bool `json:"autoMatch,omitempty"`
	Batch     int  `json:"batchSize,omitempty"`

	once  sync.Once
	index map[string][]grid.ReconCandidate
}

func init() {
	RegisterMode(DictionaryMode, func(raw json.RawMessage) (Config, error) {
		c := &DictionaryConfig{}
		if err := json.Unmarshal(raw, c); err != nil {
			return nil, fmt.Errorf("dictionary recon config: %w", err)
		}
		return c, nil
	})
}

// Mode implements Config.
func (c *DictionaryConfig) Mode() string { return DictionaryMode }

// Service implements Config.
func (c *DictionaryConfig) Service() string { return c.ServiceName }

// BatchSize implements Config.
func (c *DictionaryConfig) BatchSize() int {
	if c.Batch > 0 {
		return c.Batch
	}
	return 10
}

type dictionaryJob struct {
	text string
}

func (j *dictionaryJob) Key() string { return j.text }

func (c *DictionaryConfig) normalize(s string) string {
	s = strings.TrimSpace(s)
	if !c.CaseSensitive {
		s = strings.ToLower(s)
	}
	return s
}

// CreateJob implements Config.
func (c *DictionaryConfig) CreateJob(_ *grid.Grid, _ int, _ *grid.Row, _ string, cell *grid.Cell) Job {
	return &dictionaryJob{text: c.normalize(eval.ToString(cell.Value))}
}

// BatchRecon implements Config.
func (c *DictionaryConfig) BatchRecon(ctx context.Context, jobs []Job, historyEntryID ksid.ID) ([]*grid.Recon, error) {
	c.once.Do(c.buildIndex)
	out := make([]*grid.Recon, len(jobs))
	for i, j := range jobs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := grid.NewRecon(historyEntryID, c.ServiceName)
		r.Candidates = slices.Clone(c.index[j.Key()])
		if c.AutoMatch && len(r.Candidates) > 0 && (len(r.Candidates) == 1 || r.Candidates[0].Score > r.Candidates[1].Score) {
			m := r.Candidates[0]
			r.Match = &m
			r.MatchRank = 0
			r.Judgment = grid.JudgmentMatched
			r.JudgmentAction = "auto"
		}
		out[i] = r
	}
	return out, nil
}

func (c *DictionaryConfig) buildIndex() {
	c.index = make(map[string][]grid.ReconCandidate, len(c.Entries))
	for k, v := range c.Entries {
		cands := slices.Clone(v)
		slices.SortStableFunc(cands, func(a, b grid.ReconCandidate) int { return cmp.Compare(b.Score, a.Score) })
		key := c.normalize(k)
		c.index[key] = append(c.index[key], cands...)
	}
}

// MarshalJSON includes the mode so ParseConfig can decode the result.
func (c *DictionaryConfig) MarshalJSON() ([]byte, error) {
	type alias DictionaryConfig
	return json.Marshal(struct {
		Mode string `json:"mode"`
		*alias
	}{DictionaryMode, (*alias)(c)})
}
