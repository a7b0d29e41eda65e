package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"sampletrack/internal/blob"
	"sampletrack/internal/core"
	"sampletrack/pkg/domain"
)

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// TestIntegrationSmoke drives one sample through its whole life on each
// in-process store, archives its history to each local blob adapter and
// checks the exporters saw the operations.
func TestIntegrationSmoke(t *testing.T) {
	stores := []struct {
		name string
		open func(t *testing.T) core.PersistentStore
	}{
		{
			name: "memory-store",
			open: func(t *testing.T) core.PersistentStore {
				store, err := core.OpenPersistentStore(context.Background(), core.StorageConfig{Driver: core.StorageMemory}, core.NewDefaultRulesEngine())
				if err != nil {
					t.Fatalf("open memory store: %v", err)
				}
				return store
			},
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T) core.PersistentStore {
				store, err := core.OpenPersistentStore(context.Background(), core.StorageConfig{
					Driver:     core.StorageSQLite,
					SQLitePath: filepath.Join(t.TempDir(), "engine.db"),
				}, core.NewDefaultRulesEngine())
				if err != nil {
					t.Fatalf("open sqlite store: %v", err)
				}
				t.Cleanup(func() { _ = core.CloseStore(store) })
				return store
			},
		},
	}
	blobs := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{name: "memory-blob", open: func(*testing.T) blob.Store { return blob.NewMemory() }},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				fs, err := blob.NewFilesystem(t.TempDir())
				if err != nil {
					t.Fatalf("new filesystem blob: %v", err)
				}
				return fs
			},
		},
	}

	for _, sv := range stores {
		for _, bv := range blobs {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				runLifecycle(t, sv.open(t), bv.open(t))
			})
		}
	}
}

func runLifecycle(t *testing.T, store core.PersistentStore, archive blob.Store) {
	ctx := core.WithActor(context.Background(), "smoke")
	metrics := core.NewExpvarMetricsRecorder("")
	var traces bytes.Buffer
	tracer := core.NewJSONTracer(&traces)
	svc := core.NewService(store,
		core.WithMetricsRecorder(metrics),
		core.WithTracer(tracer),
		core.WithBlobStore(archive),
	)

	bench, _, err := svc.CreateLocation(ctx, core.Location{Name: "Bench"})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	rack, _, err := svc.CreateContainer(ctx, core.Container{Name: "Rack", LocationID: bench.ID})
	if err != nil {
		t.Fatalf("create container: %v", err)
	}
	reg, _, err := svc.RegisterItem(ctx, core.RegisterItemRequest{Barcode: "SMOKE-1", Unit: "mL", Amount: amount("10"), LocationID: bench.ID})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	move, _, err := svc.MoveToContainer(ctx, reg.Record.ID, rack.ID, amount("10"), false)
	if err != nil || move.SplitItem != nil {
		t.Fatalf("full move into rack: %+v %v", move, err)
	}

	test, _, err := svc.CreateTest(ctx, core.Test{Number: "T-1", Name: "smoke assay"})
	if err != nil {
		t.Fatalf("create test: %v", err)
	}
	alloc, _, err := svc.Allocate(ctx, reg.Item.ID, test.ID, amount("4"), "")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, _, err := svc.Activate(ctx, alloc.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	done, _, err := svc.Complete(ctx, alloc.ID, amount("3"), amount("1"), "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Allocation.Status != domain.AllocationReturned || !done.Item.TotalAmount.Equal(amount("7")) {
		t.Fatalf("unexpected completion: %+v", done)
	}

	inv, err := svc.ItemInventory(ctx, reg.Item.ID)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if !inv.TotalRemaining.Equal(amount("7")) || !inv.TotalOutstanding.IsZero() {
		t.Fatalf("expected 7 remaining and nothing outstanding, got %+v", inv)
	}
	occ, err := svc.ContainerOccupancy(ctx, rack.ID)
	if err != nil {
		t.Fatalf("occupancy: %v", err)
	}
	if !occ.Fill.Equal(amount("6")) {
		t.Fatalf("rack should hold the link clamped to 6, got %s", occ.Fill)
	}
	verify, err := svc.VerifyInventory(ctx)
	if err != nil || len(verify.Violations) != 0 {
		t.Fatalf("verify: %+v %v", verify.Violations, err)
	}

	info, err := svc.ExportHistory(ctx, core.HistoryQuery{ItemID: reg.Item.ID})
	if err != nil {
		t.Fatalf("export history: %v", err)
	}
	_, body, err := archive.Get(ctx, info.Key)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	defer body.Close()
	var actions []domain.HistoryAction
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		var entry core.HistoryEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("decode archive line: %v", err)
		}
		if entry.Actor != "smoke" {
			t.Fatalf("unexpected actor %q", entry.Actor)
		}
		actions = append(actions, entry.Action)
	}
	want := []domain.HistoryAction{
		domain.HistoryRegistered, domain.HistoryMovedToContainer, domain.HistoryAllocated,
		domain.HistoryActivated, domain.HistoryCompleted,
	}
	if len(actions) != len(want) {
		t.Fatalf("archived actions: got %v want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("archived action %d: got %s want %s", i, actions[i], want[i])
		}
	}

	stats := metrics.Snapshot()
	if stats["register_item"].Successes != 1 || stats["export_history"].Successes != 1 {
		t.Fatalf("expected recorded operations, got %+v", stats)
	}
	if traces.Len() == 0 {
		t.Fatalf("expected trace exporter to emit spans")
	}
	var sawAllocate bool
	for _, entry := range tracer.Entries() {
		if entry.Operation == "allocate" && entry.Status == "success" && entry.Actor == "smoke" {
			sawAllocate = true
		}
	}
	if !sawAllocate {
		t.Fatalf("expected allocate span, entries=%+v", tracer.Entries())
	}
}
