package chainsim

import (
	"context"
	"testing"

	"github.com/agenc/runtime/pkg/backfill"
	"github.com/agenc/runtime/pkg/risk"
	"github.com/agenc/runtime/pkg/verifier"
)

func TestSubscribeTasks_DeliversSeededTasksThenBlocks(t *testing.T) {
	chain := NewChain()
	chain.SeedTask(verifier.Task{ID: "t1", Task: risk.Task{}})
	chain.SeedTask(verifier.Task{ID: "t2", Task: risk.Task{}})

	ctx, cancel := context.WithCancel(context.Background())
	var seen []string
	done := make(chan error, 1)
	go func() {
		done <- chain.SubscribeTasks(ctx, func(ctx context.Context, task verifier.Task) error {
			seen = append(seen, task.ID)
			return nil
		})
	}()

	cancel()
	<-done

	if len(seen) != 2 || seen[0] != "t1" || seen[1] != "t2" {
		t.Fatalf("expected t1,t2 delivered in order, got %+v", seen)
	}
}

func TestClaimTask_IncrementsPerTaskCounter(t *testing.T) {
	chain := NewChain()
	task := verifier.Task{ID: "t1", Task: risk.Task{}}

	sig1, err := chain.ClaimTask(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig2, err := chain.ClaimTask(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig1 == sig2 {
		t.Fatalf("expected distinct signatures per claim, got %q twice", sig1)
	}
}

func TestFetchPage_PagesInSequenceOrderAndRespectsToSlot(t *testing.T) {
	chain := NewChain()
	chain.Emit(backfill.RawEvent{Name: "created", Slot: 10, Signature: "sig1", SourceEventSequence: 1})
	chain.Emit(backfill.RawEvent{Name: "claimed", Slot: 20, Signature: "sig2", SourceEventSequence: 2})
	chain.Emit(backfill.RawEvent{Name: "completed", Slot: 30, Signature: "sig3", SourceEventSequence: 3})

	page, err := chain.FetchPage(context.Background(), nil, 20, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Events) != 2 {
		t.Fatalf("expected 2 events within toSlot=20, got %d: %+v", len(page.Events), page.Events)
	}
	if !page.Done {
		t.Fatalf("expected page done once toSlot reached")
	}
}

func TestFetchPage_ResumesFromCursor(t *testing.T) {
	chain := NewChain()
	chain.Emit(backfill.RawEvent{Name: "created", Slot: 10, Signature: "sig1", SourceEventSequence: 1})
	chain.Emit(backfill.RawEvent{Name: "claimed", Slot: 20, Signature: "sig2", SourceEventSequence: 2})

	first, err := chain.FetchPage(context.Background(), nil, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.Events) != 1 || first.Events[0].Name != "created" {
		t.Fatalf("expected first page to hold only 'created', got %+v", first.Events)
	}

	second, err := chain.FetchPage(context.Background(), &first.NextCursor, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second.Events) != 1 || second.Events[0].Name != "claimed" {
		t.Fatalf("expected second page to resume at 'claimed', got %+v", second.Events)
	}
}

func TestGetSlot_TracksHighestEmittedSlot(t *testing.T) {
	chain := NewChain()
	chain.Emit(backfill.RawEvent{Name: "a", Slot: 5, SourceEventSequence: 1})
	chain.Emit(backfill.RawEvent{Name: "b", Slot: 50, SourceEventSequence: 2})
	chain.Emit(backfill.RawEvent{Name: "c", Slot: 15, SourceEventSequence: 3})

	slot, err := chain.GetSlot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slot != 50 {
		t.Fatalf("expected slot 50, got %d", slot)
	}
}
