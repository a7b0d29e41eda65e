package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sampletrack/pkg/domain"

	"github.com/shopspring/decimal"
)

// RegisterItemRequest describes a newly received sample.
type RegisterItemRequest struct {
	Description string
	Barcode     string
	Unit        string
	OwnerID     string
	Amount      decimal.Decimal
	LocationID  string
	// ContainerID places the registered quantity straight into a container;
	// LocationID is then taken from the container.
	ContainerID       string
	AllowOverCapacity bool
	ExpiresAt         *time.Time
}

// RegisterItemResult is the outcome of RegisterItem. When CapacityExceeded is
// set nothing was written.
type RegisterItemResult struct {
	Item             Item
	Record           StorageRecord
	Link             *ContainerLink
	CapacityExceeded *CapacityExceeded
}

// MoveResult is the outcome of MoveToLocation and MoveToContainer.
type MoveResult struct {
	// Record holds the moved quantity: the source record itself on a full
	// move, the new record of the split item on a partial move.
	Record StorageRecord
	// Source is the source record after the move.
	Source StorageRecord
	// SplitItem is set when a partial move created a new item.
	SplitItem *Item
	Link      *ContainerLink
	// VacatedContainerID names the container the source record left.
	VacatedContainerID *string
	// VacatedContainerEmpty reports whether that container holds nothing now.
	VacatedContainerEmpty bool
	// CapacityExceeded is set instead of an error when the target container
	// cannot take the quantity; nothing was written.
	CapacityExceeded *CapacityExceeded
}

// DisposeResult is the outcome of Dispose.
type DisposeResult struct {
	Item          Item
	Record        StorageRecord
	RecordDeleted bool
	// VacatedContainerID is set when disposal emptied the record's link.
	VacatedContainerID *string
}

// RegisterItem creates an item with a single storage record holding the
// full registered amount.
func (s *Service) RegisterItem(ctx context.Context, req RegisterItemRequest) (RegisterItemResult, Result, error) {
	var out RegisterItemResult
	res, err := s.run(ctx, "register_item", func(tx Transaction) error {
		out = RegisterItemResult{}
		if err := requirePositive("amount", req.Amount); err != nil {
			return err
		}
		if strings.TrimSpace(req.Barcode) == "" {
			return domain.ValidationError{Field: "barcode", Message: "is required"}
		}
		locationID := req.LocationID
		var container *Container
		if req.ContainerID != "" {
			c, err := tx.GetContainer(req.ContainerID)
			if err != nil {
				return err
			}
			container = &c
			locationID = c.LocationID
			exceeded, err := checkCapacity(tx, c, "", req.Amount, req.AllowOverCapacity)
			if err != nil {
				return err
			}
			if exceeded != nil {
				out.CapacityExceeded = exceeded
				s.logger.Info("container capacity exceeded",
					"container_id", c.ID,
					"capacity", exceeded.Capacity.String(),
					"current", exceeded.Current.String(),
					"requested", req.Amount.String(),
				)
				return nil
			}
		}
		if _, err := tx.GetLocation(locationID); err != nil {
			return err
		}

		item, err := tx.CreateItem(Item{
			Description:      req.Description,
			Barcode:          req.Barcode,
			Unit:             req.Unit,
			OwnerID:          req.OwnerID,
			RegisteredAmount: req.Amount,
			TotalAmount:      req.Amount,
			Status:           ItemStatusInStorage,
		})
		if err != nil {
			return err
		}
		rec, err := tx.CreateStorageRecord(StorageRecord{
			ItemID:          item.ID,
			LocationID:      locationID,
			AmountRemaining: req.Amount,
			ExpiresAt:       req.ExpiresAt,
		})
		if err != nil {
			return err
		}
		out.Item, out.Record = item, rec

		entry := HistoryEntry{
			ItemID: ref(item.ID),
			Action: domain.HistoryRegistered,
			Amount: amountRef(req.Amount),
			Note:   fmt.Sprintf("registered %s %s at location %s", req.Amount, item.Unit, locationID),
		}
		if container != nil {
			link, err := tx.CreateContainerLink(ContainerLink{
				StorageRecordID: rec.ID,
				ContainerID:     container.ID,
				Amount:          req.Amount,
			})
			if err != nil {
				return err
			}
			out.Link = &link
			entry.ContainerID = ref(container.ID)
			entry.Note = fmt.Sprintf("registered %s %s into container %s", req.Amount, item.Unit, container.Barcode)
		}
		return newHistoryWriter(ctx, tx).append(entry)
	})
	return out, res, err
}

// MoveToLocation moves amount from a storage record to another location. A
// move of the full remaining amount relocates the record and drops any
// container link; a partial move splits the quantity into a new item.
func (s *Service) MoveToLocation(ctx context.Context, recordID, locationID string, amount decimal.Decimal) (MoveResult, Result, error) {
	var out MoveResult
	res, err := s.run(ctx, "move_to_location", func(tx Transaction) error {
		out = MoveResult{}
		if err := requirePositive("amount", amount); err != nil {
			return err
		}
		rec, err := tx.GetStorageRecord(recordID)
		if err != nil {
			return err
		}
		loc, err := tx.GetLocation(locationID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(rec.AmountRemaining) {
			return insufficient(EntityStorageRecord, rec.ID, amount, rec.AmountRemaining)
		}
		history := newHistoryWriter(ctx, tx)

		if amount.Equal(rec.AmountRemaining) {
			link, linked, err := tx.FindContainerLinkByRecord(rec.ID)
			if err != nil {
				return err
			}
			moved, err := tx.UpdateStorageRecord(rec.ID, func(r *StorageRecord) error {
				r.LocationID = loc.ID
				return nil
			})
			if err != nil {
				return err
			}
			out.Record, out.Source = moved, moved
			entry := HistoryEntry{
				ItemID: ref(rec.ItemID),
				Action: domain.HistoryMoved,
				Amount: amountRef(amount),
				Note:   fmt.Sprintf("moved %s from location %s to %s", amount, rec.LocationID, loc.Name),
			}
			if linked {
				if err := tx.DeleteContainerLink(link.ID); err != nil {
					return err
				}
				if err := s.markVacated(tx, &out, link.ContainerID); err != nil {
					return err
				}
				entry.ContainerID = ref(link.ContainerID)
				entry.Note += fmt.Sprintf(", removed from container %s", link.ContainerID)
			}
			return history.append(entry)
		}

		split, err := splitOff(tx, rec, loc.ID, amount)
		if err != nil {
			return err
		}
		out.Record, out.Source, out.SplitItem = split.record, split.source, &split.item
		if split.vacated != nil {
			if err := s.markVacated(tx, &out, *split.vacated); err != nil {
				return err
			}
		}
		if err := history.append(HistoryEntry{
			ItemID: ref(rec.ItemID),
			Action: domain.HistoryMoved,
			Amount: amountRef(amount),
			Note:   fmt.Sprintf("split %s to %s at location %s", amount, split.item.Barcode, loc.Name),
		}); err != nil {
			return err
		}
		return history.append(HistoryEntry{
			ItemID: ref(split.item.ID),
			Action: domain.HistorySplit,
			Amount: amountRef(amount),
			Note:   fmt.Sprintf("split from %s into location %s", split.parentBarcode, loc.Name),
		})
	})
	return out, res, err
}

// MoveToContainer moves amount from a storage record into a container at the
// container's location. When the container would overflow and
// allowOverCapacity is false, the result carries CapacityExceeded and nothing
// is written.
func (s *Service) MoveToContainer(ctx context.Context, recordID, containerID string, amount decimal.Decimal, allowOverCapacity bool) (MoveResult, Result, error) {
	var out MoveResult
	res, err := s.run(ctx, "move_to_container", func(tx Transaction) error {
		out = MoveResult{}
		if err := requirePositive("amount", amount); err != nil {
			return err
		}
		rec, err := tx.GetStorageRecord(recordID)
		if err != nil {
			return err
		}
		container, err := tx.GetContainer(containerID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(rec.AmountRemaining) {
			return insufficient(EntityStorageRecord, rec.ID, amount, rec.AmountRemaining)
		}
		link, linked, err := tx.FindContainerLinkByRecord(rec.ID)
		if err != nil {
			return err
		}
		full := amount.Equal(rec.AmountRemaining)

		// A source already in this container keeps whatever its link still
		// holds after a partial move.
		excludeRecord := ""
		retained := decimal.Zero
		if linked && link.ContainerID == container.ID {
			excludeRecord = rec.ID
			if !full {
				retained = decimal.Min(link.Amount, rec.AmountRemaining.Sub(amount))
			}
		}
		exceeded, err := checkCapacity(tx, container, excludeRecord, amount.Add(retained), allowOverCapacity)
		if err != nil {
			return err
		}
		if exceeded != nil {
			exceeded.Current = exceeded.Current.Add(retained)
			exceeded.Available = decimal.Max(exceeded.Capacity.Sub(exceeded.Current), decimal.Zero)
			exceeded.Requested = amount
			out.CapacityExceeded = exceeded
			s.logger.Info("container capacity exceeded",
				"container_id", container.ID,
				"capacity", exceeded.Capacity.String(),
				"current", exceeded.Current.String(),
				"requested", amount.String(),
			)
			return nil
		}
		history := newHistoryWriter(ctx, tx)

		if full {
			moved, err := tx.UpdateStorageRecord(rec.ID, func(r *StorageRecord) error {
				r.LocationID = container.LocationID
				return nil
			})
			if err != nil {
				return err
			}
			var target ContainerLink
			switch {
			case linked && link.ContainerID == container.ID:
				target, err = tx.UpdateContainerLink(link.ID, func(l *ContainerLink) error {
					l.Amount = amount
					return nil
				})
			case linked:
				if err = tx.DeleteContainerLink(link.ID); err != nil {
					return err
				}
				if err = s.markVacated(tx, &out, link.ContainerID); err != nil {
					return err
				}
				target, err = tx.CreateContainerLink(ContainerLink{StorageRecordID: rec.ID, ContainerID: container.ID, Amount: amount})
			default:
				target, err = tx.CreateContainerLink(ContainerLink{StorageRecordID: rec.ID, ContainerID: container.ID, Amount: amount})
			}
			if err != nil {
				return err
			}
			out.Record, out.Source, out.Link = moved, moved, &target
			return history.append(HistoryEntry{
				ItemID:      ref(rec.ItemID),
				ContainerID: ref(container.ID),
				Action:      domain.HistoryMovedToContainer,
				Amount:      amountRef(amount),
				Note:        fmt.Sprintf("moved %s into container %s", amount, container.Barcode),
			})
		}

		split, err := splitOff(tx, rec, container.LocationID, amount)
		if err != nil {
			return err
		}
		target, err := tx.CreateContainerLink(ContainerLink{StorageRecordID: split.record.ID, ContainerID: container.ID, Amount: amount})
		if err != nil {
			return err
		}
		out.Record, out.Source, out.SplitItem, out.Link = split.record, split.source, &split.item, &target
		if split.vacated != nil {
			if err := s.markVacated(tx, &out, *split.vacated); err != nil {
				return err
			}
		}
		if err := history.append(HistoryEntry{
			ItemID:      ref(rec.ItemID),
			ContainerID: ref(container.ID),
			Action:      domain.HistoryMoved,
			Amount:      amountRef(amount),
			Note:        fmt.Sprintf("split %s to %s in container %s", amount, split.item.Barcode, container.Barcode),
		}); err != nil {
			return err
		}
		return history.append(HistoryEntry{
			ItemID:      ref(split.item.ID),
			ContainerID: ref(container.ID),
			Action:      domain.HistorySplit,
			Amount:      amountRef(amount),
			Note:        fmt.Sprintf("split from %s into container %s", split.parentBarcode, container.Barcode),
		})
	})
	return out, res, err
}

// Dispose permanently removes amount from a storage record.
func (s *Service) Dispose(ctx context.Context, recordID string, amount decimal.Decimal, note string) (DisposeResult, Result, error) {
	var out DisposeResult
	res, err := s.run(ctx, "dispose", func(tx Transaction) error {
		out = DisposeResult{}
		if err := requirePositive("amount", amount); err != nil {
			return err
		}
		rec, err := tx.GetStorageRecord(recordID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(rec.AmountRemaining) {
			return insufficient(EntityStorageRecord, rec.ID, amount, rec.AmountRemaining)
		}
		rec, err = tx.UpdateStorageRecord(rec.ID, func(r *StorageRecord) error {
			r.AmountRemaining = r.AmountRemaining.Sub(amount)
			return nil
		})
		if err != nil {
			return err
		}
		if _, err := tx.UpdateItem(rec.ItemID, func(i *Item) error {
			i.TotalAmount = i.TotalAmount.Sub(amount)
			return nil
		}); err != nil {
			return err
		}

		entry := HistoryEntry{
			ItemID: ref(rec.ItemID),
			Action: domain.HistoryDisposed,
			Amount: amountRef(amount),
			Note:   note,
		}
		if link, linked, err := tx.FindContainerLinkByRecord(rec.ID); err != nil {
			return err
		} else if linked {
			entry.ContainerID = ref(link.ContainerID)
			if amount.GreaterThanOrEqual(link.Amount) {
				if err := tx.DeleteContainerLink(link.ID); err != nil {
					return err
				}
				out.VacatedContainerID = ref(link.ContainerID)
			} else {
				_, err = tx.UpdateContainerLink(link.ID, func(l *ContainerLink) error {
					l.Amount = l.Amount.Sub(amount)
					return nil
				})
				if err != nil {
					return err
				}
				vacated, err := clampLink(tx, rec)
				if err != nil {
					return err
				}
				if vacated != nil {
					out.VacatedContainerID = vacated
				}
			}
		}

		deleted, err := pruneRecord(tx, rec.ID)
		if err != nil {
			return err
		}
		item, err := refreshItemStatus(tx, rec.ItemID)
		if err != nil {
			return err
		}
		out.Item, out.Record, out.RecordDeleted = item, rec, deleted
		return newHistoryWriter(ctx, tx).append(entry)
	})
	return out, res, err
}

func (s *Service) markVacated(tx Transaction, out *MoveResult, containerID string) error {
	links, err := tx.ListContainerLinks(containerID)
	if err != nil {
		return err
	}
	out.VacatedContainerID = ref(containerID)
	out.VacatedContainerEmpty = len(links) == 0
	return nil
}

type splitOutcome struct {
	item          Item
	record        StorageRecord
	source        StorageRecord
	parentBarcode string
	vacated       *string
}

// splitOff carves amount out of rec into a new child item holding a single
// record at locationID. The source record, its item total and its container
// link shrink accordingly.
func splitOff(tx Transaction, rec StorageRecord, locationID string, amount decimal.Decimal) (splitOutcome, error) {
	parent, err := tx.GetItem(rec.ItemID)
	if err != nil {
		return splitOutcome{}, err
	}
	barcode, err := splitBarcode(tx, parent.Barcode, tx.Now())
	if err != nil {
		return splitOutcome{}, err
	}
	child, err := tx.CreateItem(Item{
		Description:      parent.Description,
		Barcode:          barcode,
		Unit:             parent.Unit,
		OwnerID:          parent.OwnerID,
		RegisteredAmount: amount,
		TotalAmount:      amount,
		Status:           ItemStatusInStorage,
		ParentItemID:     ref(parent.ID),
	})
	if err != nil {
		return splitOutcome{}, err
	}
	newRec, err := tx.CreateStorageRecord(StorageRecord{
		ItemID:          child.ID,
		LocationID:      locationID,
		AmountRemaining: amount,
		ExpiresAt:       rec.ExpiresAt,
	})
	if err != nil {
		return splitOutcome{}, err
	}
	source, err := tx.UpdateStorageRecord(rec.ID, func(r *StorageRecord) error {
		r.AmountRemaining = r.AmountRemaining.Sub(amount)
		return nil
	})
	if err != nil {
		return splitOutcome{}, err
	}
	if _, err := tx.UpdateItem(parent.ID, func(i *Item) error {
		i.TotalAmount = i.TotalAmount.Sub(amount)
		return nil
	}); err != nil {
		return splitOutcome{}, err
	}
	vacated, err := clampLink(tx, source)
	if err != nil {
		return splitOutcome{}, err
	}
	return splitOutcome{
		item:          child,
		record:        newRec,
		source:        source,
		parentBarcode: parent.Barcode,
		vacated:       vacated,
	}, nil
}

// checkCapacity reports a CapacityExceeded when adding amount to container
// would overflow it. Links of excludeRecord are not counted as current fill.
// A container without capacity is unbounded.
func checkCapacity(tx Reader, container Container, excludeRecord string, amount decimal.Decimal, allowOver bool) (*CapacityExceeded, error) {
	if container.Capacity == nil || allowOver {
		return nil, nil
	}
	current, err := containerFill(tx, container.ID, excludeRecord)
	if err != nil {
		return nil, err
	}
	capacity := *container.Capacity
	if !current.Add(amount).GreaterThan(capacity) {
		return nil, nil
	}
	return &CapacityExceeded{
		ContainerID: container.ID,
		Capacity:    capacity,
		Current:     current,
		Available:   decimal.Max(capacity.Sub(current), decimal.Zero),
		Requested:   amount,
	}, nil
}

func containerFill(tx Reader, containerID, excludeRecord string) (decimal.Decimal, error) {
	links, err := tx.ListContainerLinks(containerID)
	if err != nil {
		return decimal.Zero, err
	}
	fill := decimal.Zero
	for _, link := range links {
		if link.StorageRecordID == excludeRecord {
			continue
		}
		fill = fill.Add(link.Amount)
	}
	return fill, nil
}
