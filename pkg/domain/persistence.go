package domain

import (
	"context"
	"time"
)

// RuleView provides read-only access to the records invariant rules inspect.
// Transactions satisfy it so rules see uncommitted writes.
type RuleView interface {
	GetItem(id string) (Item, error)
	GetStorageRecord(id string) (StorageRecord, error)
	ListStorageRecordsByItem(itemID string) ([]StorageRecord, error)
	ListAllocationsByItem(itemID string) ([]TestAllocation, error)
	FindContainerLinkByRecord(recordID string) (ContainerLink, bool, error)
	GetTestAllocation(id string) (TestAllocation, error)
}

// Reader exposes the queries shared by transactions and read-only views.
type Reader interface {
	RuleView
	ListItems() ([]Item, error)
	ListChildItems(parentID string) ([]Item, error)
	ItemBarcodeExists(barcode string) (bool, error)
	GetLocation(id string) (Location, error)
	CountStorageRecordsByLocation(locationID string) (int, error)
	GetContainerType(id string) (ContainerType, error)
	GetContainer(id string) (Container, error)
	ContainerBarcodeExists(barcode string) (bool, error)
	CountContainers() (int, error)
	CountContainersByType(typeID string) (int, error)
	CountContainersByLocation(locationID string) (int, error)
	ListContainerLinks(containerID string) ([]ContainerLink, error)
	GetTest(id string) (Test, error)
	ListAllocationsByTest(testID string) ([]TestAllocation, error)
	ListHistory(q HistoryQuery) ([]HistoryEntry, error)
}

// Transaction exposes the repository operations a persistence implementation
// must support within an atomic scope. Reads inside a transaction lock the
// rows they return for the lifetime of the transaction where the backend
// supports row locks.
type Transaction interface {
	Reader
	Now() time.Time

	CreateItem(Item) (Item, error)
	UpdateItem(id string, mutator func(*Item) error) (Item, error)
	DeleteItem(id string) error

	CreateLocation(Location) (Location, error)
	DeleteLocation(id string) error

	CreateStorageRecord(StorageRecord) (StorageRecord, error)
	UpdateStorageRecord(id string, mutator func(*StorageRecord) error) (StorageRecord, error)
	DeleteStorageRecord(id string) error

	CreateContainerType(ContainerType) (ContainerType, error)
	DeleteContainerType(id string) error

	CreateContainer(Container) (Container, error)
	DeleteContainer(id string) error

	CreateContainerLink(ContainerLink) (ContainerLink, error)
	UpdateContainerLink(id string, mutator func(*ContainerLink) error) (ContainerLink, error)
	DeleteContainerLink(id string) error

	CreateTest(Test) (Test, error)
	UpdateTest(id string, mutator func(*Test) error) (Test, error)

	CreateTestAllocation(TestAllocation) (TestAllocation, error)
	UpdateTestAllocation(id string, mutator func(*TestAllocation) error) (TestAllocation, error)

	// AppendHistory is the only write path for history; entries are never
	// updated or deleted.
	AppendHistory(HistoryEntry) (HistoryEntry, error)
}

// PersistentStore is the abstraction every storage backend implements.
type PersistentStore interface {
	// RunInTransaction executes fn atomically. Changes are evaluated by the
	// rules engine before commit; any error or blocking violation rolls back.
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	// View executes fn against a read-only, consistent snapshot.
	View(ctx context.Context, fn func(Reader) error) error
	RulesEngine() *RulesEngine
}
