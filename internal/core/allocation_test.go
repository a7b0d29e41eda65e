package core

import (
	"context"
	"sync"
	"testing"

	"sampletrack/pkg/domain"
)

func TestAllocationLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		x := f.register("SER-100", "10")
		test := f.test("T-100")

		alloc, _, err := f.svc.Allocate(f.ctx, x.Item.ID, test.ID, dec("4"), "aliquot for ELISA")
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if alloc.Notes != "aliquot for ELISA" {
			t.Fatalf("allocation notes not stored: %q", alloc.Notes)
		}
		if alloc.Identifier != "T-100_1" || alloc.Sequence != 1 {
			t.Fatalf("unexpected identifier %s seq %d", alloc.Identifier, alloc.Sequence)
		}
		if alloc.Status != domain.AllocationAllocated || alloc.StorageRecordID != x.Record.ID || alloc.ReturnLocationID != f.bench.ID {
			t.Fatalf("unexpected allocation: %+v", alloc)
		}
		inv := f.requireConserved(x.Item.ID)
		requireDecimal(t, "remaining", inv.TotalRemaining, "6")
		requireDecimal(t, "outstanding", inv.TotalOutstanding, "4")
		if inv.Item.Status != ItemStatusInTest || len(inv.Outstanding) != 1 {
			t.Fatalf("item should be in test with one outstanding allocation: %+v", inv)
		}

		active, _, err := f.svc.Activate(f.ctx, alloc.ID)
		if err != nil {
			t.Fatalf("activate: %v", err)
		}
		if active.Status != domain.AllocationActive {
			t.Fatalf("status: got %s want active", active.Status)
		}
		if _, _, err := f.svc.Activate(f.ctx, alloc.ID); err == nil {
			t.Fatalf("expected second activation to fail")
		} else {
			requireCode(t, err, domain.CodeInvalidArgument)
		}

		if _, _, err := f.svc.Complete(f.ctx, alloc.ID, dec("3"), dec("2"), ""); err == nil {
			t.Fatalf("expected used+returned over allocation to fail")
		} else {
			requireCode(t, err, domain.CodeInsufficientQuantity)
		}
		if _, _, err := f.svc.Complete(f.ctx, alloc.ID, dec("-1"), dec("1"), ""); err == nil {
			t.Fatalf("expected negative used to fail")
		} else {
			requireCode(t, err, domain.CodeInvalidArgument)
		}

		done, _, err := f.svc.Complete(f.ctx, alloc.ID, dec("3"), dec("1"), "run ok")
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		if done.Allocation.Status != domain.AllocationReturned || done.Allocation.Notes != "aliquot for ELISA\nrun ok" {
			t.Fatalf("unexpected completed allocation: %+v", done.Allocation)
		}
		if done.Credited == nil || done.Credited.ID != x.Record.ID {
			t.Fatalf("returned quantity should go back to the drawn record: %+v", done.Credited)
		}
		requireDecimal(t, "credited", done.Credited.AmountRemaining, "7")
		requireDecimal(t, "total", done.Item.TotalAmount, "7")
		if done.Item.Status != ItemStatusInStorage {
			t.Fatalf("status: got %s want in_storage", done.Item.Status)
		}
		if _, _, err := f.svc.Complete(f.ctx, alloc.ID, dec("0"), dec("0"), ""); err == nil {
			t.Fatalf("expected completing a closed allocation to fail")
		} else {
			requireCode(t, err, domain.CodeInvalidArgument)
		}

		second, _, err := f.svc.Allocate(f.ctx, x.Item.ID, test.ID, dec("2"), "")
		if err != nil {
			t.Fatalf("second allocate: %v", err)
		}
		if second.Identifier != "T-100_2" {
			t.Fatalf("identifier: got %s want T-100_2", second.Identifier)
		}
		done, _, err = f.svc.Complete(f.ctx, second.ID, dec("2"), dec("0"), "")
		if err != nil {
			t.Fatalf("consume: %v", err)
		}
		if done.Allocation.Status != domain.AllocationConsumed || done.Credited != nil {
			t.Fatalf("unexpected consumed allocation: %+v", done)
		}
		inv = f.requireConserved(x.Item.ID)
		requireDecimal(t, "total after consume", inv.Item.TotalAmount, "5")
		requireDecimal(t, "registered", inv.Item.RegisteredAmount, "10")
	})
}

func TestAllocateClampsContainerLink(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		x := f.register("SER-101", "10")
		y := f.container("10")
		if _, _, err := f.svc.MoveToContainer(f.ctx, x.Record.ID, y.ID, dec("10"), false); err != nil {
			t.Fatalf("move: %v", err)
		}
		if _, _, err := f.svc.Allocate(f.ctx, x.Item.ID, f.test("T-101").ID, dec("7"), ""); err != nil {
			t.Fatalf("allocate: %v", err)
		}
		requireDecimal(t, "fill", f.occupancy(y.ID).Fill, "3")
		f.requireConserved(x.Item.ID)
	})
}

func TestFullAllocationKeepsReferencedRecord(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		x := f.register("SER-102", "10")
		alloc, _, err := f.svc.Allocate(f.ctx, x.Item.ID, f.test("T-102").ID, dec("10"), "")
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		requireDecimal(t, "drawn record", f.record(x.Record.ID).AmountRemaining, "0")

		done, _, err := f.svc.Complete(f.ctx, alloc.ID, dec("10"), dec("0"), "")
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		if done.Item.Status != ItemStatusDisposed {
			t.Fatalf("status: got %s want disposed", done.Item.Status)
		}
		inv := f.requireConserved(x.Item.ID)
		if len(inv.Placements) != 0 {
			t.Fatalf("empty record should be pruned once the allocation closes: %+v", inv.Placements)
		}
	})
}

func TestDisposedItemCannotBeAllocated(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		x := f.register("SER-103", "2")
		if _, _, err := f.svc.Dispose(f.ctx, x.Record.ID, dec("2"), "spilled"); err != nil {
			t.Fatalf("dispose: %v", err)
		}
		_, _, err := f.svc.Allocate(f.ctx, x.Item.ID, f.test("T-103").ID, dec("1"), "")
		requireCode(t, err, domain.CodeInsufficientQuantity)
		e := asInsufficient(t, err)
		if e.Diagnostics == nil || e.Diagnostics.Status != ItemStatusDisposed || e.Diagnostics.StorageRecordCount != 0 {
			t.Fatalf("unexpected diagnostics: %+v", e.Diagnostics)
		}
		requireDecimal(t, "available", e.Available, "0")
		if _, _, err := f.svc.Dispose(f.ctx, x.Record.ID, dec("1"), ""); err == nil {
			t.Fatalf("expected pruned record to be gone")
		} else {
			requireCode(t, err, domain.CodeNotFound)
		}
	})
}

func TestAllocateDiagnosticsReportOtherTests(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		x := f.register("SER-104", "10")
		first, second := f.test("T-104"), f.test("T-105")
		if _, _, err := f.svc.Allocate(f.ctx, x.Item.ID, first.ID, dec("6"), ""); err != nil {
			t.Fatalf("allocate: %v", err)
		}
		_, _, err := f.svc.Allocate(f.ctx, x.Item.ID, second.ID, dec("5"), "")
		e := asInsufficient(t, err)
		requireDecimal(t, "available", e.Available, "4")
		requireDecimal(t, "requested", e.Requested, "5")
		if e.Diagnostics == nil {
			t.Fatalf("expected diagnostics")
		}
		requireDecimal(t, "allocated elsewhere", e.Diagnostics.AllocatedElsewhere, "6")
		requireDecimal(t, "total", e.Diagnostics.TotalAmount, "10")
		if e.Diagnostics.Status != ItemStatusInTest {
			t.Fatalf("status: got %s want in_test", e.Diagnostics.Status)
		}
	})
}

func TestConcurrentAllocationsNeverOverdraw(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		x := f.register("SER-106", "10")
		test := f.test("T-106")

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			failures  []error
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := f.svc.Allocate(context.Background(), x.Item.ID, test.ID, dec("2"), "")
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures = append(failures, err)
					return
				}
				succeeded++
			}()
		}
		wg.Wait()

		if succeeded != 5 {
			t.Fatalf("expected 5 successful allocations, got %d (failures: %v)", succeeded, failures)
		}
		for _, err := range failures {
			requireCode(t, err, domain.CodeInsufficientQuantity)
		}
		inv := f.requireConserved(x.Item.ID)
		requireDecimal(t, "outstanding", inv.TotalOutstanding, "10")
		requireDecimal(t, "remaining", inv.TotalRemaining, "0")
	})
}

func TestTransferMovesQuantityBetweenTests(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		x := f.register("SER-107", "10")
		origin, target := f.test("T-107"), f.test("T-200")
		src, _, err := f.svc.Allocate(f.ctx, x.Item.ID, origin.ID, dec("6"), "")
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}

		out, _, err := f.svc.Transfer(f.ctx, src.ID, target.ID, dec("4"), "re-run")
		if err != nil {
			t.Fatalf("transfer: %v", err)
		}
		if out.Target.Identifier != "T-200_1" || out.Target.TestID != target.ID {
			t.Fatalf("unexpected target allocation: %+v", out.Target)
		}
		if out.Target.SourceAllocationID == nil || *out.Target.SourceAllocationID != src.ID {
			t.Fatalf("target should reference its source: %+v", out.Target)
		}
		if out.Source.Status != domain.AllocationTransferred || out.Source.TransferredToID == nil || *out.Source.TransferredToID != out.Target.ID {
			t.Fatalf("unexpected source allocation: %+v", out.Source)
		}
		requireDecimal(t, "source returned", out.Source.AmountReturned, "2")
		if out.Credited == nil || out.Credited.ID != x.Record.ID {
			t.Fatalf("remainder should return to the drawn record: %+v", out.Credited)
		}
		requireDecimal(t, "credited", out.Credited.AmountRemaining, "6")

		inv := f.requireConserved(x.Item.ID)
		requireDecimal(t, "total", inv.Item.TotalAmount, "10")
		requireDecimal(t, "outstanding", inv.TotalOutstanding, "4")
		if inv.Item.Status != ItemStatusInTest {
			t.Fatalf("status: got %s want in_test", inv.Item.Status)
		}

		if _, _, err := f.svc.Transfer(f.ctx, src.ID, target.ID, dec("1"), ""); err == nil {
			t.Fatalf("expected transferring a closed allocation to fail")
		} else {
			requireCode(t, err, domain.CodeInvalidArgument)
		}
		if _, _, err := f.svc.Transfer(f.ctx, out.Target.ID, target.ID, dec("1"), ""); err == nil {
			t.Fatalf("expected same-test transfer to fail")
		} else {
			requireCode(t, err, domain.CodeInvalidArgument)
		}
		if _, _, err := f.svc.Transfer(f.ctx, out.Target.ID, origin.ID, dec("5"), ""); err == nil {
			t.Fatalf("expected transfer over allocation to fail")
		} else {
			requireCode(t, err, domain.CodeInsufficientQuantity)
		}

		done, _, err := f.svc.Complete(f.ctx, out.Target.ID, dec("1"), dec("3"), "")
		if err != nil {
			t.Fatalf("complete transferred: %v", err)
		}
		requireDecimal(t, "credited after complete", done.Credited.AmountRemaining, "9")
		requireDecimal(t, "total after complete", done.Item.TotalAmount, "9")
		f.requireConserved(x.Item.ID)
	})
}

func TestCreditStorageRecreatesMissingRecord(t *testing.T) {
	svc := NewInMemoryService(NewRulesEngine())
	ctx := context.Background()
	var credited StorageRecord
	if _, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		loc, err := tx.CreateLocation(Location{Name: "Cold room"})
		if err != nil {
			return err
		}
		item, err := tx.CreateItem(Item{Barcode: "SER-108", RegisteredAmount: dec("5"), TotalAmount: dec("5"), Status: ItemStatusInTest})
		if err != nil {
			return err
		}
		credited, err = creditStorage(tx, TestAllocation{ItemID: item.ID, StorageRecordID: "gone", ReturnLocationID: loc.ID}, dec("2"))
		return err
	}); err != nil {
		t.Fatalf("credit storage: %v", err)
	}
	if credited.ID == "" || credited.ID == "gone" {
		t.Fatalf("expected a new record, got %+v", credited)
	}
	requireDecimal(t, "credited", credited.AmountRemaining, "2")
}

func TestCreateTestRequiresUniqueNumber(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		f.test("T-300")
		if _, _, err := f.svc.CreateTest(f.ctx, Test{Number: "T-300"}); err == nil {
			t.Fatalf("expected duplicate number conflict")
		} else {
			requireCode(t, err, domain.CodeConflict)
		}
		if _, _, err := f.svc.CreateTest(f.ctx, Test{Number: "  "}); err == nil {
			t.Fatalf("expected blank number to be rejected")
		} else {
			requireCode(t, err, domain.CodeInvalidArgument)
		}
	})
}
