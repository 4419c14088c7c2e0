package models

// RetainerStatus represents the lifecycle status of a retainer account.
type RetainerStatus string

const (
	RetainerStatusActive   RetainerStatus = "active"
	RetainerStatusRefunded RetainerStatus = "refunded"
)

// Valid returns true if the status is a known value.
func (s RetainerStatus) Valid() bool {
	switch s {
	case RetainerStatusActive, RetainerStatusRefunded:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further consumption is permitted in this status.
// A refunded account can still be revived by a replenishment.
func (s RetainerStatus) Terminal() bool {
	return s == RetainerStatusRefunded
}

// RetainerType categorizes how a retainer is scoped.
type RetainerType string

const (
	RetainerTypeGeneral      RetainerType = "general"
	RetainerTypeCaseSpecific RetainerType = "case_specific"
)

// Valid returns true if the type is a known value.
func (t RetainerType) Valid() bool {
	switch t {
	case RetainerTypeGeneral, RetainerTypeCaseSpecific:
		return true
	default:
		return false
	}
}

// EntryKind distinguishes the two kinds of ledger entries.
type EntryKind string

const (
	EntryKindDeposit     EntryKind = "deposit"
	EntryKindConsumption EntryKind = "consumption"
)
