package core

import (
	"context"
	"fmt"
	"strings"

	"sampletrack/pkg/domain"

	"github.com/shopspring/decimal"
)

// CompleteResult is the outcome of Complete.
type CompleteResult struct {
	Allocation TestAllocation
	Item       Item
	// Credited is the storage record the returned quantity went to.
	Credited *StorageRecord
}

// TransferResult is the outcome of Transfer.
type TransferResult struct {
	Source   TestAllocation
	Target   TestAllocation
	Credited *StorageRecord
}

// CreateTest registers a test quantity can be allocated to.
func (s *Service) CreateTest(ctx context.Context, test Test) (Test, Result, error) {
	var created Test
	res, err := s.run(ctx, "create_test", func(tx Transaction) error {
		test.Number = strings.TrimSpace(test.Number)
		if test.Number == "" {
			return domain.ValidationError{Field: "number", Message: "is required"}
		}
		test.AllocationSeq = 0
		var err error
		created, err = tx.CreateTest(test)
		if err != nil {
			return err
		}
		return newHistoryWriter(ctx, tx).append(HistoryEntry{
			TestID: ref(created.ID),
			Action: domain.HistoryTestCreated,
			Note:   fmt.Sprintf("test %s created", created.Number),
		})
	})
	return created, res, err
}

// Allocate checks amount of an item out to a test. Quantity is drawn from
// the item's storage records oldest first; the first record drawn from is
// where returned quantity goes back to.
func (s *Service) Allocate(ctx context.Context, itemID, testID string, amount decimal.Decimal, notes string) (TestAllocation, Result, error) {
	var created TestAllocation
	res, err := s.run(ctx, "allocate", func(tx Transaction) error {
		if err := requirePositive("amount", amount); err != nil {
			return err
		}
		item, err := tx.GetItem(itemID)
		if err != nil {
			return err
		}
		if _, err := tx.GetTest(testID); err != nil {
			return err
		}
		records, err := tx.ListStorageRecordsByItem(itemID)
		if err != nil {
			return err
		}
		allocations, err := tx.ListAllocationsByItem(itemID)
		if err != nil {
			return err
		}
		available, _ := sumQuantities(records, nil)
		if item.Status == ItemStatusDisposed || amount.GreaterThan(available) {
			elsewhere := decimal.Zero
			for _, a := range allocations {
				if a.TestID != testID {
					elsewhere = elsewhere.Add(a.Outstanding())
				}
			}
			return &domain.InsufficientQuantityError{
				Entity:    EntityItem,
				ID:        itemID,
				Requested: amount,
				Available: available,
				Diagnostics: &domain.QuantityDiagnostics{
					Status:             item.Status,
					RegisteredAmount:   item.RegisteredAmount,
					TotalAmount:        item.TotalAmount,
					StorageRecordCount: len(records),
					TotalRemaining:     available,
					AllocatedElsewhere: elsewhere,
				},
			}
		}

		test, err := nextAllocationSeq(tx, testID)
		if err != nil {
			return err
		}
		var drawn []StorageRecord
		left := amount
		for _, rec := range records {
			if !left.IsPositive() {
				break
			}
			if !rec.AmountRemaining.IsPositive() {
				continue
			}
			take := decimal.Min(rec.AmountRemaining, left)
			updated, err := tx.UpdateStorageRecord(rec.ID, func(r *StorageRecord) error {
				r.AmountRemaining = r.AmountRemaining.Sub(take)
				return nil
			})
			if err != nil {
				return err
			}
			if _, err := clampLink(tx, updated); err != nil {
				return err
			}
			drawn = append(drawn, updated)
			left = left.Sub(take)
		}

		first := drawn[0]
		created, err = tx.CreateTestAllocation(TestAllocation{
			ItemID:           itemID,
			TestID:           test.ID,
			StorageRecordID:  first.ID,
			ReturnLocationID: first.LocationID,
			Identifier:       allocationIdentifier(test),
			Sequence:         test.AllocationSeq,
			AmountAllocated:  amount,
			Status:           domain.AllocationAllocated,
			Notes:            notes,
		})
		if err != nil {
			return err
		}
		for _, rec := range drawn[1:] {
			if _, err := pruneRecord(tx, rec.ID); err != nil {
				return err
			}
		}
		if _, err := refreshItemStatus(tx, itemID); err != nil {
			return err
		}
		return newHistoryWriter(ctx, tx).append(HistoryEntry{
			ItemID:       ref(itemID),
			TestID:       ref(test.ID),
			AllocationID: ref(created.ID),
			Action:       domain.HistoryAllocated,
			Amount:       amountRef(amount),
			Note:         appendNote(fmt.Sprintf("allocated %s of %s to test %s as %s", amount, item.Barcode, test.Number, created.Identifier), notes),
		})
	})
	return created, res, err
}

// Activate marks an allocated quantity as in use by the test.
func (s *Service) Activate(ctx context.Context, allocationID string) (TestAllocation, Result, error) {
	var updated TestAllocation
	res, err := s.run(ctx, "activate", func(tx Transaction) error {
		alloc, err := tx.GetTestAllocation(allocationID)
		if err != nil {
			return err
		}
		if alloc.Status != domain.AllocationAllocated {
			return domain.ValidationError{Field: "status", Message: fmt.Sprintf("allocation %s is %s, not allocated", alloc.Identifier, alloc.Status)}
		}
		updated, err = tx.UpdateTestAllocation(alloc.ID, func(a *TestAllocation) error {
			a.Status = domain.AllocationActive
			return nil
		})
		if err != nil {
			return err
		}
		return newHistoryWriter(ctx, tx).append(HistoryEntry{
			ItemID:       ref(alloc.ItemID),
			TestID:       ref(alloc.TestID),
			AllocationID: ref(alloc.ID),
			Action:       domain.HistoryActivated,
			Note:         fmt.Sprintf("allocation %s activated", alloc.Identifier),
		})
	})
	return updated, res, err
}

// Complete closes an outstanding allocation. used is consumed by the test;
// returned goes back to storage.
func (s *Service) Complete(ctx context.Context, allocationID string, used, returned decimal.Decimal, notes string) (CompleteResult, Result, error) {
	var out CompleteResult
	res, err := s.run(ctx, "complete", func(tx Transaction) error {
		out = CompleteResult{}
		if err := requireNonNegative("amount_used", used); err != nil {
			return err
		}
		if err := requireNonNegative("amount_returned", returned); err != nil {
			return err
		}
		alloc, err := outstandingAllocation(tx, allocationID)
		if err != nil {
			return err
		}
		if total := used.Add(returned); total.GreaterThan(alloc.AmountAllocated) {
			return insufficient(EntityTestAllocation, alloc.ID, total, alloc.AmountAllocated)
		}

		if returned.IsPositive() {
			rec, err := creditStorage(tx, alloc, returned)
			if err != nil {
				return err
			}
			out.Credited = &rec
		}
		status := domain.AllocationConsumed
		if returned.IsPositive() {
			status = domain.AllocationReturned
		}
		out.Allocation, err = tx.UpdateTestAllocation(alloc.ID, func(a *TestAllocation) error {
			a.AmountUsed = used
			a.AmountReturned = returned
			a.Status = status
			a.Notes = appendNote(a.Notes, notes)
			return nil
		})
		if err != nil {
			return err
		}
		if _, err := tx.UpdateItem(alloc.ItemID, func(i *Item) error {
			i.TotalAmount = i.TotalAmount.Sub(alloc.AmountAllocated.Sub(returned))
			return nil
		}); err != nil {
			return err
		}
		if out.Credited == nil {
			if _, err := pruneRecord(tx, alloc.StorageRecordID); err != nil {
				return err
			}
		}
		out.Item, err = refreshItemStatus(tx, alloc.ItemID)
		if err != nil {
			return err
		}
		note := fmt.Sprintf("%s completed: used %s, returned %s", alloc.Identifier, used, returned)
		if notes != "" {
			note += ": " + notes
		}
		return newHistoryWriter(ctx, tx).append(HistoryEntry{
			ItemID:       ref(alloc.ItemID),
			TestID:       ref(alloc.TestID),
			AllocationID: ref(alloc.ID),
			Action:       domain.HistoryCompleted,
			Amount:       amountRef(used),
			Note:         note,
		})
	})
	return out, res, err
}

// Transfer moves amount of an outstanding allocation to another test. The
// rest of the source allocation returns to storage.
func (s *Service) Transfer(ctx context.Context, allocationID, targetTestID string, amount decimal.Decimal, notes string) (TransferResult, Result, error) {
	var out TransferResult
	res, err := s.run(ctx, "transfer", func(tx Transaction) error {
		out = TransferResult{}
		if err := requirePositive("amount", amount); err != nil {
			return err
		}
		src, err := outstandingAllocation(tx, allocationID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(src.AmountAllocated) {
			return insufficient(EntityTestAllocation, src.ID, amount, src.AmountAllocated)
		}
		if src.TestID == targetTestID {
			return domain.ValidationError{Field: "target_test_id", Message: "allocation already belongs to this test"}
		}
		test, err := nextAllocationSeq(tx, targetTestID)
		if err != nil {
			return err
		}
		out.Target, err = tx.CreateTestAllocation(TestAllocation{
			ItemID:             src.ItemID,
			TestID:             test.ID,
			StorageRecordID:    src.StorageRecordID,
			ReturnLocationID:   src.ReturnLocationID,
			Identifier:         allocationIdentifier(test),
			Sequence:           test.AllocationSeq,
			AmountAllocated:    amount,
			Status:             domain.AllocationAllocated,
			Notes:              notes,
			SourceAllocationID: ref(src.ID),
		})
		if err != nil {
			return err
		}

		remainder := src.AmountAllocated.Sub(amount)
		if remainder.IsPositive() {
			rec, err := creditStorage(tx, src, remainder)
			if err != nil {
				return err
			}
			out.Credited = &rec
		}
		out.Source, err = tx.UpdateTestAllocation(src.ID, func(a *TestAllocation) error {
			a.Status = domain.AllocationTransferred
			a.AmountReturned = remainder
			a.TransferredToID = ref(out.Target.ID)
			a.Notes = appendNote(a.Notes, notes)
			return nil
		})
		if err != nil {
			return err
		}
		if _, err := refreshItemStatus(tx, src.ItemID); err != nil {
			return err
		}
		return newHistoryWriter(ctx, tx).append(HistoryEntry{
			ItemID:       ref(src.ItemID),
			TestID:       ref(test.ID),
			AllocationID: ref(out.Target.ID),
			Action:       domain.HistoryTransferred,
			Amount:       amountRef(amount),
			Note:         fmt.Sprintf("transferred %s from %s to %s, %s returned to storage", amount, src.Identifier, out.Target.Identifier, remainder),
		})
	})
	return out, res, err
}

func outstandingAllocation(tx Transaction, id string) (TestAllocation, error) {
	alloc, err := tx.GetTestAllocation(id)
	if err != nil {
		return TestAllocation{}, err
	}
	if !alloc.Status.Outstanding() {
		return TestAllocation{}, domain.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("allocation %s is %s", alloc.Identifier, alloc.Status),
		}
	}
	return alloc, nil
}

// nextAllocationSeq bumps the allocation counter of a test.
func nextAllocationSeq(tx Transaction, testID string) (Test, error) {
	return tx.UpdateTest(testID, func(t *Test) error {
		t.AllocationSeq++
		return nil
	})
}

func allocationIdentifier(test Test) string {
	return fmt.Sprintf("%s_%d", test.Number, test.AllocationSeq)
}

func appendNote(existing, note string) string {
	switch {
	case note == "":
		return existing
	case existing == "":
		return note
	default:
		return existing + "\n" + note
	}
}
