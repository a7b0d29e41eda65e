// Package domain defines the persistent entities, typed errors, repository
// contracts and rule evaluation primitives of the sample quantity engine.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record stored in the engine.
type EntityType string

// Supported entity type identifiers used in Change records and error payloads.
const (
	EntityItem           EntityType = "item"
	EntityLocation       EntityType = "location"
	EntityStorageRecord  EntityType = "storage_record"
	EntityContainerType  EntityType = "container_type"
	EntityContainer      EntityType = "container"
	EntityContainerLink  EntityType = "container_link"
	EntityTest           EntityType = "test"
	EntityTestAllocation EntityType = "test_allocation"
	EntityHistoryEntry   EntityType = "history_entry"
)

// ItemStatus is the lifecycle state of a tracked sample.
type ItemStatus string

// Item lifecycle states. Status only changes through engine operations.
const (
	ItemStatusInStorage ItemStatus = "in_storage"
	ItemStatusInTest    ItemStatus = "in_test"
	ItemStatusDisposed  ItemStatus = "disposed"
)

// AllocationStatus is the sub-lifecycle of a test allocation.
type AllocationStatus string

// Allocation states. Allocated and Active count as outstanding quantity.
const (
	AllocationAllocated   AllocationStatus = "allocated"
	AllocationActive      AllocationStatus = "active"
	AllocationConsumed    AllocationStatus = "consumed"
	AllocationReturned    AllocationStatus = "returned"
	AllocationTransferred AllocationStatus = "transferred"
)

// Outstanding reports whether quantity in this state still belongs to the test.
func (s AllocationStatus) Outstanding() bool {
	return s == AllocationAllocated || s == AllocationActive
}

// HistoryAction names the kind of mutation captured by a HistoryEntry.
type HistoryAction string

// History actions written by the engine.
const (
	HistoryRegistered           HistoryAction = "registered"
	HistoryMoved                HistoryAction = "moved"
	HistorySplit                HistoryAction = "split"
	HistoryMovedToContainer     HistoryAction = "moved_to_container"
	HistoryRemovedFromContainer HistoryAction = "removed_from_container"
	HistoryDisposed             HistoryAction = "disposed"
	HistoryAllocated            HistoryAction = "allocated"
	HistoryActivated            HistoryAction = "activated"
	HistoryCompleted            HistoryAction = "completed"
	HistoryTransferred          HistoryAction = "transferred"
	HistoryItemDeleted          HistoryAction = "item_deleted"
	HistoryLocationCreated      HistoryAction = "location_created"
	HistoryLocationDeleted      HistoryAction = "location_deleted"
	HistoryContainerTypeCreated HistoryAction = "container_type_created"
	HistoryContainerTypeDeleted HistoryAction = "container_type_deleted"
	HistoryContainerCreated     HistoryAction = "container_created"
	HistoryContainerDeleted     HistoryAction = "container_deleted"
	HistoryTestCreated          HistoryAction = "test_created"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all mutable records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is the physical sample being tracked.
//
// RegisteredAmount never changes after registration. TotalAmount is the last
// known total: it shrinks when quantity is disposed, consumed by a test or
// split off into a child item.
type Item struct {
	Base
	Description      string          `json:"description"`
	Barcode          string          `json:"barcode"`
	Unit             string          `json:"unit"`
	OwnerID          string          `json:"owner_id"`
	RegisteredAmount decimal.Decimal `json:"registered_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Status           ItemStatus      `json:"status"`
	ParentItemID     *string         `json:"parent_item_id,omitempty"`
}

// Location is a named storage place.
type Location struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description"`
}

// StorageRecord is a quantity of an item sitting at one location.
type StorageRecord struct {
	Base
	ItemID          string          `json:"item_id"`
	LocationID      string          `json:"location_id"`
	AmountRemaining decimal.Decimal `json:"amount_remaining"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
}

// ContainerType groups containers sharing a default capacity.
type ContainerType struct {
	Base
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	DefaultCapacity decimal.Decimal `json:"default_capacity"`
}

// Container is a physical holder. A nil Capacity means unbounded.
type Container struct {
	Base
	Barcode    string           `json:"barcode"`
	Name       string           `json:"name"`
	TypeID     *string          `json:"type_id,omitempty"`
	Capacity   *decimal.Decimal `json:"capacity,omitempty"`
	LocationID string           `json:"location_id"`
	IsMixed    bool             `json:"is_mixed"`
}

// ContainerLink records how much of a storage record sits in a container.
// A storage record is linked to at most one container.
type ContainerLink struct {
	Base
	StorageRecordID string          `json:"storage_record_id"`
	ContainerID     string          `json:"container_id"`
	Amount          decimal.Decimal `json:"amount"`
}

// Test is the context quantity gets allocated to.
type Test struct {
	Base
	Number        string `json:"number"`
	Name          string `json:"name"`
	AllocationSeq int    `json:"allocation_seq"`
}

// TestAllocation is a quantity of an item checked out for a test.
type TestAllocation struct {
	Base
	ItemID             string           `json:"item_id"`
	TestID             string           `json:"test_id"`
	StorageRecordID    string           `json:"storage_record_id"`
	ReturnLocationID   string           `json:"return_location_id"`
	Identifier         string           `json:"identifier"`
	Sequence           int              `json:"sequence"`
	AmountAllocated    decimal.Decimal  `json:"amount_allocated"`
	AmountUsed         decimal.Decimal  `json:"amount_used"`
	AmountReturned     decimal.Decimal  `json:"amount_returned"`
	Status             AllocationStatus `json:"status"`
	Notes              string           `json:"notes"`
	SourceAllocationID *string          `json:"source_allocation_id,omitempty"`
	TransferredToID    *string          `json:"transferred_to_id,omitempty"`
}

// Outstanding returns the quantity still held by the test.
func (a TestAllocation) Outstanding() decimal.Decimal {
	if !a.Status.Outstanding() {
		return decimal.Zero
	}
	return a.AmountAllocated
}

// HistoryEntry is an immutable audit record of a mutation.
type HistoryEntry struct {
	ID           string           `json:"id"`
	ItemID       *string          `json:"item_id,omitempty"`
	ContainerID  *string          `json:"container_id,omitempty"`
	TestID       *string          `json:"test_id,omitempty"`
	AllocationID *string          `json:"allocation_id,omitempty"`
	Action       HistoryAction    `json:"action"`
	Actor        string           `json:"actor"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Note         string           `json:"note"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

// HistoryQuery filters history reads. Zero fields do not filter.
type HistoryQuery struct {
	ItemID      string
	TestID      string
	ContainerID string
	From        time.Time
	To          time.Time
	Limit       int
}

// Matches reports whether the entry satisfies the query filters.
func (q HistoryQuery) Matches(e HistoryEntry) bool {
	if q.ItemID != "" && (e.ItemID == nil || *e.ItemID != q.ItemID) {
		return false
	}
	if q.TestID != "" && (e.TestID == nil || *e.TestID != q.TestID) {
		return false
	}
	if q.ContainerID != "" && (e.ContainerID == nil || *e.ContainerID != q.ContainerID) {
		return false
	}
	if !q.From.IsZero() && e.OccurredAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !e.OccurredAt.Before(q.To) {
		return false
	}
	return true
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured per transaction.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	EntityID string     `json:"entity_id"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
