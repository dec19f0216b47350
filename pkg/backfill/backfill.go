// Package backfill drives cursor-driven page ingestion from an external
// chain fetcher into a replaystore.Store, with stall detection and
// crash-safe cursor persistence. Grounded on the teacher's
// pkg/tape/{recorder,replayer}.go sequential-cursor pattern (a
// monotonically advancing position that is only ever trusted once the
// step it names has durably landed) generalized from an in-process tape
// to an external, paged event source.
package backfill

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/agenc/runtime/pkg/alert"
	"github.com/agenc/runtime/pkg/metrics"
	"github.com/agenc/runtime/pkg/replaystore"
)

// RawEvent is one event as handed back by the fetcher, before projection.
type RawEvent struct {
	Name                string
	Payload             map[string]interface{}
	Slot                uint64
	Signature           string
	SourceEventSequence uint64
	TimestampMs         int64
	TaskID              string
	DisputeID           string
	TraceID             string
	SpanID              string
}

// Page is one page returned by Fetcher.FetchPage.
type Page struct {
	Events     []RawEvent
	NextCursor replaystore.Cursor
	Done       bool
}

// Fetcher is the external collaborator backfill pages against.
type Fetcher interface {
	FetchPage(ctx context.Context, cursor *replaystore.Cursor, toSlot uint64, pageSize int) (Page, error)
}

// Projector turns one raw event into a replaystore.Record. ok is false
// when the event name is not recognized.
type Projector func(RawEvent) (replaystore.Record, bool)

// Config tunes one Run invocation.
type Config struct {
	ToSlot                   uint64
	PageSize                 int
	Strict                   bool // unknown event names raise instead of accumulating
	MaxDuplicateKeysReported int
	// PriorRunFailed tells Run that the previous invocation returned an
	// error; if this run completes at least one successful save, the
	// resume_after_crash alert fires. The caller tracks this across
	// process restarts; backfill itself is stateless between calls.
	PriorRunFailed bool
}

// Result is what Run returns on success (Run also returns early, with a
// partial Result, alongside an error on failure).
type Result struct {
	Processed         int
	Duplicates        int
	DuplicateKeys     []string
	UnknownEventNames []string
	PagesFetched      int
	ResumedAfterCrash bool
}

// Runner wires a store, a fetcher, known-event projectors, and an
// alert/metrics sink into one backfill loop.
type Runner struct {
	Store      replaystore.Store
	Fetcher    Fetcher
	Projectors map[string]Projector
	Metrics    metrics.Provider
	Alerts     alert.Dispatcher
	Now        func() int64
}

// NewRunner constructs a Runner, defaulting unset collaborators to
// no-ops so callers only need to supply what they use.
func NewRunner(store replaystore.Store, fetcher Fetcher, projectors map[string]Projector) *Runner {
	return &Runner{
		Store:      store,
		Fetcher:    fetcher,
		Projectors: projectors,
		Metrics:    metrics.NoopProvider{},
		Alerts:     alert.NoopDispatcher{},
	}
}

func (r *Runner) project(ev RawEvent) (replaystore.Record, bool) {
	proj, ok := r.Projectors[ev.Name]
	if !ok {
		return replaystore.Record{}, false
	}
	return proj(ev)
}

// Run loads the persisted cursor, pages through the fetcher until it
// reports Done, projects and saves each page, and persists the cursor
// only after each successful save.
func (r *Runner) Run(ctx context.Context, cfg Config) (Result, error) {
	var result Result

	cursor, err := r.Store.GetCursor(ctx)
	if err != nil {
		return result, fmt.Errorf("backfill: load cursor: %w", err)
	}

	firstSave := true
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := r.Fetcher.FetchPage(ctx, cursor, cfg.ToSlot, cfg.PageSize)
		if err != nil {
			return result, fmt.Errorf("backfill: fetch page: %w", err)
		}
		result.PagesFetched++

		records := make([]replaystore.Record, 0, len(page.Events))
		for _, ev := range page.Events {
			record, known := r.project(ev)
			if !known {
				result.UnknownEventNames = append(result.UnknownEventNames, ev.Name)
				r.Metrics.Counter("replay.backfill.unknown_event", 1, metrics.MustLabel("name", ev.Name))
				if cfg.Strict {
					return result, fmt.Errorf("backfill: unknown event name %q in strict mode", ev.Name)
				}
				continue
			}
			records = append(records, record)
		}

		saveResult, err := r.Store.Save(ctx, records)
		if err != nil {
			r.Metrics.Counter("replay.backfill.store_write_failed", 1, nil)
			return result, fmt.Errorf("backfill: store save: %w", err)
		}

		if firstSave {
			r.Metrics.Histogram("replay.backfill.page_size", float64(len(page.Events)), nil)
			firstSave = false
		}

		result.Processed += saveResult.Inserted
		result.Duplicates += saveResult.Duplicates
		result.DuplicateKeys = append(result.DuplicateKeys, saveResult.DuplicateKeys...)

		if cursor != nil && len(page.Events) > 0 && cursor.Equal(page.NextCursor) {
			_ = r.Alerts.Dispatch(alert.Alert{
				SchemaVersion: 1, Code: "replay.backfill.stalled", Severity: alert.SeverityWarning,
				Kind: alert.KindReplayIngestionLag, TimestampMs: r.now(),
				Metadata: map[string]interface{}{"cursor": page.NextCursor.StableString()},
			})
			return result, fmt.Errorf("backfill: stalled at cursor %s", page.NextCursor.StableString())
		}

		if err := r.Store.SaveCursor(ctx, page.NextCursor); err != nil {
			return result, fmt.Errorf("backfill: persist cursor: %w", err)
		}
		nextCursor := page.NextCursor
		cursor = &nextCursor

		if cfg.PriorRunFailed && !result.ResumedAfterCrash {
			result.ResumedAfterCrash = true
			_ = r.Alerts.Dispatch(alert.Alert{
				SchemaVersion: 1, Code: "replay.backfill.resume_after_crash", Severity: alert.SeverityInfo,
				Kind: alert.KindReplayIngestionLag, TimestampMs: r.now(),
			})
		}

		if page.Done {
			break
		}
	}

	sort.Strings(result.DuplicateKeys)
	limit := cfg.MaxDuplicateKeysReported
	if limit > 0 && len(result.DuplicateKeys) > limit {
		result.DuplicateKeys = result.DuplicateKeys[:limit]
	}

	return result, nil
}

func (r *Runner) now() int64 {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UnixMilli()
}
