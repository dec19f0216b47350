// Package chainsim is an in-process stand-in for the external chain a
// production agent process claims tasks from and ingests events out of.
// Grounded on pkg/kernel/blob_store.go's InMemoryBlobStore: a
// mutex-guarded, deterministic in-memory collaborator implementing the
// same interface a networked backend would, so the runtime glue and its
// tests never depend on a live chain.
package chainsim

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agenc/runtime/pkg/backfill"
	"github.com/agenc/runtime/pkg/replaystore"
	"github.com/agenc/runtime/pkg/verifier"
)

// Chain simulates task claiming/completion and the slot-indexed raw
// event log a backfill.Fetcher pages over. It implements both
// agentruntime.ChainClient and backfill.Fetcher so one in-memory
// instance can back a whole agent process in tests or local runs.
type Chain struct {
	mu       sync.Mutex
	pending  []verifier.Task
	claims   map[string]int // taskID -> number of times claimed
	complete map[string]verifier.Output
	events   []backfill.RawEvent
	slot     uint64
}

// NewChain constructs an empty simulated chain.
func NewChain() *Chain {
	return &Chain{
		claims:   make(map[string]int),
		complete: make(map[string]verifier.Output),
	}
}

// SeedTask queues a task SubscribeTasks will eventually deliver.
func (c *Chain) SeedTask(task verifier.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, task)
}

// Emit appends a raw event to the chain's log at the given slot, making
// it visible to subsequent FetchPage calls.
func (c *Chain) Emit(ev backfill.RawEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.Slot > c.slot {
		c.slot = ev.Slot
	}
	c.events = append(c.events, ev)
}

// SubscribeTasks delivers every currently seeded task once, in the
// order seeded, then blocks until ctx is cancelled — mirroring a
// long-lived subscription over a finite backlog.
func (c *Chain) SubscribeTasks(ctx context.Context, onTask func(ctx context.Context, task verifier.Task) error) error {
	c.mu.Lock()
	tasks := make([]verifier.Task, len(c.pending))
	copy(tasks, c.pending)
	c.mu.Unlock()

	for _, task := range tasks {
		if err := onTask(ctx, task); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

// ClaimTask records a claim against task.ID and returns a deterministic
// claim signature.
func (c *Chain) ClaimTask(ctx context.Context, task verifier.Task) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims[task.ID]++
	return fmt.Sprintf("claim:%s:%d", task.ID, c.claims[task.ID]), nil
}

// CompleteTask records the task's output and returns a deterministic
// completion signature.
func (c *Chain) CompleteTask(ctx context.Context, task verifier.Task, output verifier.Output) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.complete[task.ID] = output
	return fmt.Sprintf("complete:%s", task.ID), nil
}

// GetSlot returns the highest slot any emitted event carries.
func (c *Chain) GetSlot(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot, nil
}

// FetchPage implements backfill.Fetcher over the emitted event log,
// paging in SourceEventSequence order (events with equal sequences keep
// insertion order) and advancing the cursor by SourceEventSequence.
func (c *Chain) FetchPage(ctx context.Context, cursor *replaystore.Cursor, toSlot uint64, pageSize int) (backfill.Page, error) {
	c.mu.Lock()
	events := make([]backfill.RawEvent, len(c.events))
	copy(events, c.events)
	c.mu.Unlock()

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].SourceEventSequence < events[j].SourceEventSequence
	})

	var afterSeq uint64
	if cursor != nil {
		afterSeq = cursorSeq(cursor, events)
	}

	var page []backfill.RawEvent
	for _, ev := range events {
		if ev.SourceEventSequence <= afterSeq {
			continue
		}
		if toSlot > 0 && ev.Slot > toSlot {
			continue
		}
		page = append(page, ev)
		if pageSize > 0 && len(page) >= pageSize {
			break
		}
	}

	done := len(page) == 0 || (toSlot > 0 && c.lastSlot(page) >= toSlot)
	var next replaystore.Cursor
	if len(page) > 0 {
		last := page[len(page)-1]
		next = replaystore.Cursor{Slot: last.Slot, Signature: last.Signature, EventName: last.Name, TraceID: last.TraceID, SpanID: last.SpanID}
	} else if cursor != nil {
		next = *cursor
	}

	return backfill.Page{Events: page, NextCursor: next, Done: done}, nil
}

func (c *Chain) lastSlot(page []backfill.RawEvent) uint64 {
	if len(page) == 0 {
		return 0
	}
	return page[len(page)-1].Slot
}

// cursorSeq recovers the SourceEventSequence the cursor's signature
// last pointed at, since replaystore.Cursor does not itself carry a
// sequence number.
func cursorSeq(cursor *replaystore.Cursor, events []backfill.RawEvent) uint64 {
	for _, ev := range events {
		if ev.Signature == cursor.Signature && ev.Name == cursor.EventName {
			return ev.SourceEventSequence
		}
	}
	return 0
}
