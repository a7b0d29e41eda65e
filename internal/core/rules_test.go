package core

import (
	"context"
	"errors"
	"testing"

	"sampletrack/pkg/domain"
)

func hasRule(violations []Violation, rule string, severity Severity) bool {
	for _, v := range violations {
		if v.Rule == rule && v.Severity == severity {
			return true
		}
	}
	return false
}

func requireBlockedBy(t *testing.T, err error, rule string) {
	t.Helper()
	var invariant domain.InvariantViolationError
	if !errors.As(err, &invariant) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if !hasRule(invariant.Result.Violations, rule, SeverityBlock) {
		t.Fatalf("expected %s to block, got %+v", rule, invariant.Result.Violations)
	}
}

func TestConservationViolationRollsBack(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		x := f.register("SER-300", "10")
		_, err := f.svc.Store().RunInTransaction(f.ctx, func(tx Transaction) error {
			_, err := tx.UpdateStorageRecord(x.Record.ID, func(r *StorageRecord) error {
				r.AmountRemaining = dec("9")
				return nil
			})
			return err
		})
		requireBlockedBy(t, err, "quantity_conservation")
		requireDecimal(t, "remaining after rollback", f.record(x.Record.ID).AmountRemaining, "10")
		f.requireConserved(x.Item.ID)
	})
}

func TestTotalAboveRegisteredBlocked(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		x := f.register("SER-301", "10")
		_, err := f.svc.Store().RunInTransaction(f.ctx, func(tx Transaction) error {
			if _, err := tx.UpdateStorageRecord(x.Record.ID, func(r *StorageRecord) error {
				r.AmountRemaining = dec("11")
				return nil
			}); err != nil {
				return err
			}
			_, err := tx.UpdateItem(x.Item.ID, func(i *Item) error {
				i.TotalAmount = dec("11")
				return nil
			})
			return err
		})
		requireBlockedBy(t, err, "quantity_conservation")
	})
}

func TestNegativeRemainingBlocked(t *testing.T) {
	svc := NewInMemoryService(NewDefaultRulesEngine(), WithClock(newStepClock()))
	f := newFixture(t, svc)
	x := f.register("SER-302", "1")
	_, err := svc.Store().RunInTransaction(f.ctx, func(tx Transaction) error {
		if _, err := tx.UpdateStorageRecord(x.Record.ID, func(r *StorageRecord) error {
			r.AmountRemaining = dec("-1")
			return nil
		}); err != nil {
			return err
		}
		_, err := tx.UpdateItem(x.Item.ID, func(i *Item) error {
			i.TotalAmount = dec("-1")
			return nil
		})
		return err
	})
	requireBlockedBy(t, err, "non_negative_remaining")
	requireBlockedBy(t, err, "quantity_conservation")
}

func TestContainerLinkBoundBlocked(t *testing.T) {
	svc := NewInMemoryService(NewDefaultRulesEngine(), WithClock(newStepClock()))
	f := newFixture(t, svc)
	y := f.container("")
	out, _, err := svc.RegisterItem(f.ctx, RegisterItemRequest{Barcode: "SER-303", Amount: dec("2"), ContainerID: y.ID})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = svc.Store().RunInTransaction(f.ctx, func(tx Transaction) error {
		_, err := tx.UpdateContainerLink(out.Link.ID, func(l *ContainerLink) error {
			l.Amount = dec("3")
			return nil
		})
		return err
	})
	requireBlockedBy(t, err, "container_link_bound")

	_, err = svc.Store().RunInTransaction(f.ctx, func(tx Transaction) error {
		return tx.DeleteStorageRecord(out.Record.ID)
	})
	if err == nil {
		t.Fatalf("expected deleting a linked record to be blocked")
	}
}

func TestAllocationBoundBlocked(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		x := f.register("SER-304", "5")
		alloc, _, err := f.svc.Allocate(f.ctx, x.Item.ID, f.test("T-304").ID, dec("4"), "")
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		_, err = f.svc.Store().RunInTransaction(f.ctx, func(tx Transaction) error {
			_, err := tx.UpdateTestAllocation(alloc.ID, func(a *TestAllocation) error {
				a.AmountUsed = dec("3")
				a.AmountReturned = dec("2")
				return nil
			})
			return err
		})
		requireBlockedBy(t, err, "allocation_bound")
	})
}

func TestItemStatusMismatchOnlyWarns(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		x := f.register("SER-305", "5")
		res, err := f.svc.Store().RunInTransaction(f.ctx, func(tx Transaction) error {
			_, err := tx.UpdateItem(x.Item.ID, func(i *Item) error {
				i.Status = ItemStatusDisposed
				return nil
			})
			return err
		})
		if err != nil {
			t.Fatalf("status mismatch should commit: %v", err)
		}
		if !hasRule(res.Violations, "item_status", SeverityWarn) {
			t.Fatalf("expected item_status warning, got %+v", res.Violations)
		}
		verify, err := f.svc.VerifyInventory(f.ctx)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if !hasRule(verify.Violations, "item_status", SeverityWarn) || verify.HasBlocking() {
			t.Fatalf("verify should only report the status warning: %+v", verify.Violations)
		}
	})
}

func TestVerifyInventoryReportsDrift(t *testing.T) {
	svc := NewInMemoryService(NewRulesEngine(), WithClock(newStepClock()))
	f := newFixture(t, svc)
	x := f.register("SER-306", "10")
	if _, err := svc.Store().RunInTransaction(f.ctx, func(tx Transaction) error {
		_, err := tx.UpdateItem(x.Item.ID, func(i *Item) error {
			i.TotalAmount = dec("12")
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("corrupt without rules: %v", err)
	}

	res, err := svc.VerifyInventory(context.Background())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.HasBlocking() || !hasRule(res.Violations, "quantity_conservation", SeverityBlock) {
		t.Fatalf("expected conservation violations, got %+v", res.Violations)
	}
	drift := 0
	for _, v := range res.Violations {
		if v.Rule == "quantity_conservation" && v.EntityID == x.Item.ID {
			drift++
		}
	}
	if drift != 2 {
		t.Fatalf("expected drift and over-registered violations, got %d: %+v", drift, res.Violations)
	}
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		stored, outstanding string
		want                ItemStatus
	}{
		{"1", "0", ItemStatusInStorage},
		{"0", "0.5", ItemStatusInTest},
		{"3", "2", ItemStatusInTest},
		{"0", "0", ItemStatusDisposed},
	}
	for _, tc := range cases {
		if got := deriveStatus(dec(tc.stored), dec(tc.outstanding)); got != tc.want {
			t.Fatalf("deriveStatus(%s, %s): got %s want %s", tc.stored, tc.outstanding, got, tc.want)
		}
	}
}
