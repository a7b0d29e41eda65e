package core

import "sampletrack/pkg/domain"

type (
	EntityType       = domain.EntityType
	Severity         = domain.Severity
	Base             = domain.Base
	Item             = domain.Item
	ItemStatus       = domain.ItemStatus
	Location         = domain.Location
	StorageRecord    = domain.StorageRecord
	ContainerType    = domain.ContainerType
	Container        = domain.Container
	ContainerLink    = domain.ContainerLink
	Test             = domain.Test
	TestAllocation   = domain.TestAllocation
	AllocationStatus = domain.AllocationStatus
	HistoryEntry     = domain.HistoryEntry
	HistoryQuery     = domain.HistoryQuery
	HistoryAction    = domain.HistoryAction
	Change           = domain.Change
	Action           = domain.Action
	Violation        = domain.Violation
	Result           = domain.Result
	CapacityExceeded = domain.CapacityExceeded
	RulesEngine      = domain.RulesEngine
	Rule             = domain.Rule
	Transaction      = domain.Transaction
	Reader           = domain.Reader
	PersistentStore  = domain.PersistentStore
)

const (
	EntityItem           = domain.EntityItem
	EntityLocation       = domain.EntityLocation
	EntityStorageRecord  = domain.EntityStorageRecord
	EntityContainerType  = domain.EntityContainerType
	EntityContainer      = domain.EntityContainer
	EntityContainerLink  = domain.EntityContainerLink
	EntityTest           = domain.EntityTest
	EntityTestAllocation = domain.EntityTestAllocation
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ItemStatusInStorage = domain.ItemStatusInStorage
	ItemStatusInTest    = domain.ItemStatusInTest
	ItemStatusDisposed  = domain.ItemStatusDisposed
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
