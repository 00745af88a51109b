// Defines the reconciliation annotation carried by cells.

package grid

import (
	"github.com/maruel/ksid"
)

// Judgment is the reconciliation verdict for a cell.
type Judgment string

// Judgment values.
const (
	JudgmentNone    Judgment = "none"
	JudgmentMatched Judgment = "matched"
	JudgmentNew     Judgment = "new"
)

// ReconCandidate is one possible match proposed by a reconciliation service.
type ReconCandidate struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Types []string `json:"types,omitempty"`
	Score float64  `json:"score"`
}

// Recon is a reconciliation result. It is treated as immutable once attached
// to a cell; use [Recon.Dup] to derive a modified copy.
type Recon struct {
	ID                   ksid.ID          `json:"id"`
	JudgmentHistoryEntry ksid.ID          `json:"judgmentHistoryEntry,omitzero"`
	Service              string           `json:"service,omitempty"`
	Judgment             Judgment         `json:"j"`
	JudgmentAction       string           `json:"ja,omitempty"`
	JudgmentBatchSize    int              `json:"jbs,omitempty"`
	Match                *ReconCandidate  `json:"m,omitempty"`
	MatchRank            int              `json:"mr,omitempty"`
	Candidates           []ReconCandidate `json:"c,omitempty"`
}

// NewRecon returns an unjudged recon attributed to the given history entry.
func NewRecon(historyEntryID ksid.ID, service string) *Recon {
	return &Recon{
		ID:                   ksid.NewID(),
		JudgmentHistoryEntry: historyEntryID,
		Service:              service,
		Judgment:             JudgmentNone,
		MatchRank:            -1,
	}
}

// Dup returns a copy with a fresh ID attributed to historyEntryID.
func (r *Recon) Dup(historyEntryID ksid.ID) *Recon {
	d := *r
	d.ID = ksid.NewID()
	d.JudgmentHistoryEntry = historyEntryID
	d.Candidates = append([]ReconCandidate(nil), r.Candidates...)
	if r.Match != nil {
		m := *r.Match
		d.Match = &m
	}
	return &d
}

// Best returns the highest ranked candidate, or nil.
func (r *Recon) Best() *ReconCandidate {
	if r == nil || len(r.Candidates) == 0 {
		return nil
	}
	return &r.Candidates[0]
}

// ReconStats summarizes reconciliation state of a column.
type ReconStats struct {
	NonBlanks     int `json:"nonBlanks"`
	NewTopics     int `json:"newTopics"`
	MatchedTopics int `json:"matchedTopics"`
}

// ComputeReconStats scans the cells at cellIndex.
func ComputeReconStats(g *Grid, cellIndex int) *ReconStats {
	s := &ReconStats{}
	for _, row := range g.rows {
		c := row.Cell(cellIndex)
		if c == nil || IsBlank(c.Value) {
			continue
		}
		s.NonBlanks++
		if c.Recon == nil {
			continue
		}
		switch c.Recon.Judgment {
		case JudgmentNew:
			s.NewTopics++
		case JudgmentMatched:
			s.MatchedTopics++
		case JudgmentNone:
		}
	}
	return s
}
