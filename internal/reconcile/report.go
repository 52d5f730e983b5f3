package reconcile

import "time"

// Phase names one step of a reconciliation cycle.
type Phase string

const (
	PhaseCollectKnown     Phase = "collect_known"
	PhaseFetchLive        Phase = "fetch_live"
	PhaseDiff             Phase = "diff"
	PhaseClassify         Phase = "classify"
	PhasePublishNew       Phase = "publish_new"
	PhaseRefreshCitations Phase = "refresh_citations"
	PhaseDone             Phase = "done"
)

// Report summarizes one cycle.
type Report struct {
	CycleID    string    `json:"cycle_id"`
	DryRun     bool      `json:"dry_run,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Known int      `json:"known"`
	Live  int      `json:"live"`
	New   []string `json:"new"`

	Allowed   []string `json:"allowed"`
	Denied    []string `json:"denied"`
	Undecided []string `json:"undecided"`

	Published []Published     `json:"published"`
	Refreshed []RefreshResult `json:"refreshed"`
	Failures  []Failure       `json:"failures"`
}

// Published records one new post.
type Published struct {
	ExternalID string `json:"external_id"`
	InternalID int64  `json:"internal_id"`
	PostID     int64  `json:"post_id"`
}

// RefreshResult describes one post's citation refresh.
type RefreshResult struct {
	ExternalID string `json:"external_id"`
	PostID     int64  `json:"post_id"`
	Citing     int    `json:"citing"`     // citing ids reported by the source
	Added      int    `json:"added"`      // comments created this pass
	Duplicates int    `json:"duplicates"` // comments the publisher already had
	Skipped    int    `json:"skipped"`    // comments left for a later pass
	Complete   bool   `json:"complete"`   // timestamp advanced
	Error      string `json:"error,omitempty"`
}

// Failure is a per-item failure that did not abort the cycle.
type Failure struct {
	Phase Phase  `json:"phase"`
	ID    string `json:"id"` // external publication id, or author id in fetch_live
	Error string `json:"error"`
}

func (r *Report) fail(phase Phase, id string, err error) {
	r.Failures = append(r.Failures, Failure{Phase: phase, ID: id, Error: err.Error()})
}
