package core

import (
	"context"
	"fmt"

	"sampletrack/pkg/domain"
)

// NewNonNegativeRemainingRule returns the rule rejecting storage records
// with a negative remaining amount.
func NewNonNegativeRemainingRule() domain.Rule {
	return nonNegativeRemainingRule{}
}

type nonNegativeRemainingRule struct{}

func (nonNegativeRemainingRule) Name() string { return "non_negative_remaining" }

func (r nonNegativeRemainingRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, id := range sortedKeys(collectChanges(changes).records) {
		rec, err := view.GetStorageRecord(id)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return domain.Result{}, err
		}
		if rec.AmountRemaining.IsNegative() {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("storage record %s remaining %s is negative", rec.ID, rec.AmountRemaining),
				Entity:   domain.EntityStorageRecord,
				EntityID: rec.ID,
			})
		}
	}
	return res, nil
}

// NewItemStatusRule returns a warning rule flagging items whose stored
// status disagrees with the status derived from their quantities.
func NewItemStatusRule() domain.Rule {
	return itemStatusRule{}
}

type itemStatusRule struct{}

func (itemStatusRule) Name() string { return "item_status" }

func (r itemStatusRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, itemID := range sortedKeys(collectChanges(changes).items) {
		item, err := view.GetItem(itemID)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return domain.Result{}, err
		}
		records, err := view.ListStorageRecordsByItem(itemID)
		if err != nil {
			return domain.Result{}, err
		}
		allocations, err := view.ListAllocationsByItem(itemID)
		if err != nil {
			return domain.Result{}, err
		}
		stored, outstanding := sumQuantities(records, allocations)
		if want := deriveStatus(stored, outstanding); want != item.Status {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("item %s status %s, quantities imply %s", item.Barcode, item.Status, want),
				Entity:   domain.EntityItem,
				EntityID: item.ID,
			})
		}
	}
	return res, nil
}
