package core

import (
	"context"

	"sampletrack/pkg/domain"

	"github.com/shopspring/decimal"
)

// deriveStatus maps an item's stored and outstanding quantity to its status.
// Outstanding test quantity wins over stored quantity.
func deriveStatus(stored, outstanding decimal.Decimal) domain.ItemStatus {
	switch {
	case outstanding.IsPositive():
		return domain.ItemStatusInTest
	case stored.IsPositive():
		return domain.ItemStatusInStorage
	default:
		return domain.ItemStatusDisposed
	}
}

func requirePositive(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ValidationError{Field: field, Message: "must be greater than zero"}
	}
	return nil
}

func requireNonNegative(field string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return domain.ValidationError{Field: field, Message: "must not be negative"}
	}
	return nil
}

func insufficient(entity domain.EntityType, id string, requested, available decimal.Decimal) error {
	return &domain.InsufficientQuantityError{Entity: entity, ID: id, Requested: requested, Available: available}
}

// refreshItemStatus recomputes and stores the item status from its records
// and allocations.
func refreshItemStatus(tx domain.Transaction, itemID string) (domain.Item, error) {
	records, err := tx.ListStorageRecordsByItem(itemID)
	if err != nil {
		return domain.Item{}, err
	}
	allocations, err := tx.ListAllocationsByItem(itemID)
	if err != nil {
		return domain.Item{}, err
	}
	stored, outstanding := sumQuantities(records, allocations)
	status := deriveStatus(stored, outstanding)
	item, err := tx.GetItem(itemID)
	if err != nil {
		return domain.Item{}, err
	}
	if item.Status == status {
		return item, nil
	}
	return tx.UpdateItem(itemID, func(i *domain.Item) error {
		i.Status = status
		return nil
	})
}

// clampLink shrinks a record's container link so it never holds more than
// the record's remaining amount. A link clamped to zero is removed. It
// reports the container the record was vacated from, if any.
func clampLink(tx domain.Transaction, rec domain.StorageRecord) (*string, error) {
	link, ok, err := tx.FindContainerLinkByRecord(rec.ID)
	if err != nil || !ok {
		return nil, err
	}
	if !link.Amount.GreaterThan(rec.AmountRemaining) {
		return nil, nil
	}
	if !rec.AmountRemaining.IsPositive() {
		if err := tx.DeleteContainerLink(link.ID); err != nil {
			return nil, err
		}
		containerID := link.ContainerID
		return &containerID, nil
	}
	_, err = tx.UpdateContainerLink(link.ID, func(l *domain.ContainerLink) error {
		l.Amount = rec.AmountRemaining
		return nil
	})
	return nil, err
}

// pruneRecord deletes an empty storage record once nothing references it:
// no container link and no outstanding allocation drawn from it.
func pruneRecord(tx domain.Transaction, recordID string) (bool, error) {
	rec, err := tx.GetStorageRecord(recordID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if !rec.AmountRemaining.IsZero() {
		return false, nil
	}
	if _, linked, err := tx.FindContainerLinkByRecord(rec.ID); err != nil || linked {
		return false, err
	}
	allocations, err := tx.ListAllocationsByItem(rec.ItemID)
	if err != nil {
		return false, err
	}
	for _, alloc := range allocations {
		if alloc.StorageRecordID == rec.ID && alloc.Status.Outstanding() {
			return false, nil
		}
	}
	if err := tx.DeleteStorageRecord(rec.ID); err != nil {
		return false, err
	}
	return true, nil
}

// creditStorage puts returned quantity back into the record it was drawn
// from, or into a new record at the return location when that record is gone.
func creditStorage(tx domain.Transaction, alloc domain.TestAllocation, amount decimal.Decimal) (domain.StorageRecord, error) {
	_, err := tx.GetStorageRecord(alloc.StorageRecordID)
	switch {
	case err == nil:
		return tx.UpdateStorageRecord(alloc.StorageRecordID, func(r *domain.StorageRecord) error {
			r.AmountRemaining = r.AmountRemaining.Add(amount)
			return nil
		})
	case isNotFound(err):
		return tx.CreateStorageRecord(domain.StorageRecord{
			ItemID:          alloc.ItemID,
			LocationID:      alloc.ReturnLocationID,
			AmountRemaining: amount,
		})
	default:
		return domain.StorageRecord{}, err
	}
}

// historyWriter stamps entries with the calling actor.
type historyWriter struct {
	tx    domain.Transaction
	actor string
}

func newHistoryWriter(ctx context.Context, tx domain.Transaction) historyWriter {
	return historyWriter{tx: tx, actor: ActorFromContext(ctx)}
}

func (h historyWriter) append(entry domain.HistoryEntry) error {
	entry.Actor = h.actor
	_, err := h.tx.AppendHistory(entry)
	return err
}

func ref(s string) *string { return &s }

func amountRef(d decimal.Decimal) *decimal.Decimal { return &d }
