package domain

import (
	"math"
	"time"
)

// MovementType is the closed set of movement kinds.
type MovementType string

const (
	MovementTypeIncome       MovementType = "INCOME"
	MovementTypeExpense      MovementType = "EXPENSE"
	MovementTypeTransfer     MovementType = "TRANSFER"
	MovementTypeDistribution MovementType = "DISTRIBUTION"
)

// IsValid checks if the type is one of the known movement types.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementTypeIncome, MovementTypeExpense, MovementTypeTransfer, MovementTypeDistribution:
		return true
	}
	return false
}

// AcceptsDestination reports whether a movement of this type may carry a
// destination bank account.
func (t MovementType) AcceptsDestination() bool {
	switch t {
	case MovementTypeTransfer:
		return true
	case MovementTypeIncome, MovementTypeExpense, MovementTypeDistribution:
		return false
	}
	return false
}

// Distributable reports whether a movement of this type can be the source of
// a distribution.
func (t MovementType) Distributable() bool {
	switch t {
	case MovementTypeExpense:
		return true
	case MovementTypeIncome, MovementTypeTransfer, MovementTypeDistribution:
		return false
	}
	return false
}

// MovementStatus is the lifecycle state of a movement.
type MovementStatus string

const (
	// MovementStatusDraft marks imported rows pending categorization.
	MovementStatusDraft MovementStatus = "DRAFT"
	// MovementStatusApproved is the terminal counted state.
	MovementStatusApproved MovementStatus = "APPROVED"
	// MovementStatusCancelled is terminal and excluded from aggregates.
	MovementStatusCancelled MovementStatus = "CANCELLED"
)

// IsValid checks if the status is a known status.
func (s MovementStatus) IsValid() bool {
	switch s {
	case MovementStatusDraft, MovementStatusApproved, MovementStatusCancelled:
		return true
	}
	return false
}

// CountsInAggregates reports whether movements in this status are summed.
func (s MovementStatus) CountsInAggregates() bool {
	switch s {
	case MovementStatusApproved:
		return true
	case MovementStatusDraft, MovementStatusCancelled:
		return false
	}
	return false
}

// Movement is a single recorded monetary transaction. Amount is in minor
// currency units.
type Movement struct {
	ID                       string
	Amount                   int64
	Currency                 string
	SourceBankAccountID      string
	DestinationBankAccountID *string
	AreaID                   string
	DepartmentID             *string
	UserID                   string
	Type                     MovementType
	Status                   MovementStatus
	Description              string
	Category                 *string
	Reference                *string
	TransactionDate          time.Time
	ParentID                 *string
	IsSplitParent            bool
	IsInternalTransfer       bool
	IdempotencyKey           *string
	DistributionID           *string
	CreatedAt                time.Time
	UpdatedAt                time.Time
	DeletedAt                *time.Time
}

// InternalTransfer reports whether a movement between source and destination
// stays inside the organization. It is false when no destination is set.
func InternalTransfer(source string, destination *string) bool {
	if destination == nil || *destination == "" {
		return false
	}
	return source == *destination
}

// IsChild reports whether the movement was produced by a split or
// distribution.
func (m *Movement) IsChild() bool {
	return m.ParentID != nil
}

// IsDeleted reports whether the movement has been soft-deleted.
func (m *Movement) IsDeleted() bool {
	return m.DeletedAt != nil
}

// NeedsCategorization is true for draft rows still missing a department.
func (m *Movement) NeedsCategorization() bool {
	return m.Status == MovementStatusDraft && m.DepartmentID == nil
}

// IsAggregable reports whether the movement's amount contributes to income
// and expense totals. Split parents are informational once their children
// exist, and internal transfers never leave the organization.
func (m *Movement) IsAggregable() bool {
	if m.IsDeleted() || m.IsSplitParent || m.IsInternalTransfer {
		return false
	}
	return m.Status.CountsInAggregates()
}

// SignedAmount returns the amount as it affects organization totals:
// positive for income, negative for expenses and distributions, zero for
// transfers and anything not aggregable.
func (m *Movement) SignedAmount() int64 {
	if !m.IsAggregable() {
		return 0
	}
	switch m.Type {
	case MovementTypeIncome:
		return m.Amount
	case MovementTypeExpense, MovementTypeDistribution:
		return -m.Amount
	case MovementTypeTransfer:
		return 0
	}
	return 0
}

// Allocation is one share of a split.
type Allocation struct {
	AreaID       string
	DepartmentID *string
	Amount       int64
	Description  *string
}

// SplitChild builds a child movement for allocation a, inheriting the
// parent's accounts, classification flags, dates and status.
func (m *Movement) SplitChild(id string, a Allocation, userID string, now time.Time) *Movement {
	description := "Split from: " + m.Description
	if a.Description != nil && *a.Description != "" {
		description = *a.Description
	}

	parentID := m.ID

	return &Movement{
		ID:                       id,
		Amount:                   a.Amount,
		Currency:                 m.Currency,
		SourceBankAccountID:      m.SourceBankAccountID,
		DestinationBankAccountID: m.DestinationBankAccountID,
		AreaID:                   a.AreaID,
		DepartmentID:             a.DepartmentID,
		UserID:                   userID,
		Type:                     m.Type,
		Status:                   m.Status,
		Description:              description,
		Reference:                m.Reference,
		TransactionDate:          m.TransactionDate,
		ParentID:                 &parentID,
		IsInternalTransfer:       m.IsInternalTransfer,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}

// SumAllocations returns the total of all allocation amounts. A total that
// would leave the int64 range is rejected instead of wrapping.
func SumAllocations(allocations []Allocation) (int64, error) {
	var total int64
	for i, a := range allocations {
		if (a.Amount > 0 && total > math.MaxInt64-a.Amount) ||
			(a.Amount < 0 && total < math.MinInt64-a.Amount) {
			return 0, BadRequest(ErrInvalidAmount, "Allocation total overflows at allocation %d", i+1)
		}
		total += a.Amount
	}
	return total, nil
}
