package api

import (
	"slices"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/notematch/internal/events"
)

// StoredResult is a finished run kept by the ResultStore.
type StoredResult struct {
	RunID       string         `json:"run_id"`
	CompletedAt time.Time      `json:"completed_at"`
	Result      events.Summary `json:"result"`
}

// ResultStore keeps recent results in memory, keyed by run id, until
// they expire. It is process-local.
type ResultStore struct {
	cache *cache.Cache
}

// NewResultStore returns a store whose entries live for ttl.
func NewResultStore(ttl time.Duration) *ResultStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResultStore{cache: cache.New(ttl, 2*ttl)}
}

// Name implements events.Consumer.
func (r *ResultStore) Name() string {
	return "results"
}

// ProcessEvent implements events.Consumer, storing result events.
func (r *ResultStore) ProcessEvent(ev events.Event) error {
	if ev.Kind != events.KindResult || ev.Result == nil || ev.RunID == "" {
		return nil
	}
	r.cache.SetDefault(ev.RunID, StoredResult{
		RunID:       ev.RunID,
		CompletedAt: ev.Timestamp,
		Result:      *ev.Result,
	})
	return nil
}

// Get returns the stored result for runID.
func (r *ResultStore) Get(runID string) (StoredResult, bool) {
	v, ok := r.cache.Get(runID)
	if !ok {
		return StoredResult{}, false
	}
	res, ok := v.(StoredResult)
	return res, ok
}

// List returns unexpired results, most recent first.
func (r *ResultStore) List() []StoredResult {
	items := r.cache.Items()
	out := make([]StoredResult, 0, len(items))
	for _, item := range items {
		if res, ok := item.Object.(StoredResult); ok {
			out = append(out, res)
		}
	}
	slices.SortFunc(out, func(a, b StoredResult) int {
		return b.CompletedAt.Compare(a.CompletedAt)
	})
	return out
}
