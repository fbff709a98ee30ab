package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tallyhouse/tally/internal/models"
	"github.com/tallyhouse/tally/internal/signal"
	"github.com/tallyhouse/tally/internal/storage"
	"github.com/tallyhouse/tally/internal/storage/memory"
	"github.com/tallyhouse/tally/internal/storage/sqlite"
)

func newFallback(t *testing.T) *sqlite.Fallback {
	t.Helper()
	dir, err := os.MkdirTemp("", "tally-ledger-*")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	f, err := sqlite.Open(filepath.Join(dir, "snapshot.db"))
	if err != nil {
		t.Fatalf("open fallback: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestServesSnapshotWhenStoreUnreachable(t *testing.T) {
	fallback := newFallback(t)
	ctx := context.Background()

	// A healthy session persists its window, then shuts down.
	store := memory.New(storage.Identity{DisplayName: "Ana"})
	store.UpsertObligation(ctx, models.Obligation{
		ID: "c1", Kind: models.KindCredit, CustomerName: "Budi",
		Date: time.Now(), FaceAmount: 500000,
	})
	healthy := New(Options{
		Label: "credits", Kind: models.KindCredit,
		Store: store, Bus: signal.NewBus(), Fallback: fallback,
		Filter: storage.ListFilter{Kind: models.KindCredit},
	})
	healthy.Start(ctx)
	healthy.Stop()

	// Next startup cannot reach the store at all.
	dead := memory.New(storage.Identity{})
	dead.FailWith = errors.New("no route to host")
	degraded := New(Options{
		Label: "credits", Kind: models.KindCredit,
		Store: dead, Bus: signal.NewBus(), Fallback: fallback,
		Filter: storage.ListFilter{Kind: models.KindCredit},
	})
	degraded.Start(ctx)
	defer degraded.Stop()

	if degraded.Cache.Loading() {
		t.Fatal("degraded cache still loading")
	}
	if !degraded.Cache.Stale() {
		t.Error("degraded cache not marked stale")
	}
	rows := degraded.Cache.Rows()
	if len(rows) != 1 || rows[0].ID != "c1" {
		t.Fatalf("snapshot rows = %+v, want c1", rows)
	}
	if totals, ok := degraded.Cache.TotalsFor("c1"); !ok || totals.Remaining != 500000 {
		t.Errorf("snapshot totals = %+v", totals)
	}
}

func TestHealthyStartIsNotStale(t *testing.T) {
	ctx := context.Background()
	store := memory.New(storage.Identity{})
	s := New(Options{
		Label: "deposits", Kind: models.KindDeposit,
		Store: store, Bus: signal.NewBus(),
		Filter: storage.ListFilter{Kind: models.KindDeposit},
	})
	s.Start(ctx)
	defer s.Stop()

	if s.Cache.Loading() || s.Cache.Stale() {
		t.Errorf("loading=%v stale=%v after healthy start", s.Cache.Loading(), s.Cache.Stale())
	}
}

func TestWriteUpdatesSnapshotViaRefresh(t *testing.T) {
	fallback := newFallback(t)
	ctx := context.Background()
	store := memory.New(storage.Identity{DisplayName: "Ana"})

	s := New(Options{
		Label: "credits", Kind: models.KindCredit,
		Store: store, Bus: signal.NewBus(), Fallback: fallback,
		Filter: storage.ListFilter{Kind: models.KindCredit},
	})
	s.Start(ctx)
	defer s.Stop()

	if _, err := s.Gateway.SaveObligation(ctx, models.Obligation{CustomerName: "Citra", FaceAmount: 100}); err != nil {
		t.Fatalf("SaveObligation failed: %v", err)
	}
	if err := s.Coordinator.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	obligations, _, err := fallback.Load(ctx, models.KindCredit)
	if err != nil {
		t.Fatalf("fallback load: %v", err)
	}
	if len(obligations) != 1 || obligations[0].CustomerName != "Citra" {
		t.Errorf("snapshot = %+v", obligations)
	}
}
