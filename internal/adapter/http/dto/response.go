package dto

import (
	"time"

	"github.com/iho/splitledger/internal/domain"
	"github.com/iho/splitledger/internal/usecase"
)

// MovementResponse represents a movement in API responses. Amount is the
// major-unit rendering of AmountMinor. SignedAmountMinor is the movement's
// effect on organization totals and is zero when CountsInTotals is false.
type MovementResponse struct {
	ID                       string     `json:"id"`
	Amount                   string     `json:"amount"`
	AmountMinor              int64      `json:"amount_minor"`
	Currency                 string     `json:"currency"`
	SourceBankAccountID      string     `json:"source_bank_account_id"`
	DestinationBankAccountID *string    `json:"destination_bank_account_id,omitempty"`
	AreaID                   string     `json:"area_id"`
	DepartmentID             *string    `json:"department_id,omitempty"`
	UserID                   string     `json:"user_id"`
	Type                     string     `json:"type"`
	Status                   string     `json:"status"`
	Description              string     `json:"description"`
	Category                 *string    `json:"category,omitempty"`
	Reference                *string    `json:"reference,omitempty"`
	TransactionDate          time.Time  `json:"transaction_date"`
	ParentID                 *string    `json:"parent_id,omitempty"`
	IsSplitParent            bool       `json:"is_split_parent"`
	IsInternalTransfer       bool       `json:"is_internal_transfer"`
	DistributionID           *string    `json:"distribution_id,omitempty"`
	SignedAmountMinor        int64      `json:"signed_amount_minor"`
	CountsInTotals           bool       `json:"counts_in_totals"`
	NeedsCategorization      bool       `json:"needs_categorization"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
	DeletedAt                *time.Time `json:"deleted_at,omitempty"`
}

// MovementFromDomain converts domain movement to response.
func MovementFromDomain(m *domain.Movement) *MovementResponse {
	return &MovementResponse{
		ID:                       m.ID,
		Amount:                   domain.FormatMinorUnits(m.Amount, m.Currency),
		AmountMinor:              m.Amount,
		Currency:                 m.Currency,
		SourceBankAccountID:      m.SourceBankAccountID,
		DestinationBankAccountID: m.DestinationBankAccountID,
		AreaID:                   m.AreaID,
		DepartmentID:             m.DepartmentID,
		UserID:                   m.UserID,
		Type:                     string(m.Type),
		Status:                   string(m.Status),
		Description:              m.Description,
		Category:                 m.Category,
		Reference:                m.Reference,
		TransactionDate:          m.TransactionDate,
		ParentID:                 m.ParentID,
		IsSplitParent:            m.IsSplitParent,
		IsInternalTransfer:       m.IsInternalTransfer,
		DistributionID:           m.DistributionID,
		SignedAmountMinor:        m.SignedAmount(),
		CountsInTotals:           m.IsAggregable(),
		NeedsCategorization:      m.NeedsCategorization(),
		CreatedAt:                m.CreatedAt,
		UpdatedAt:                m.UpdatedAt,
		DeletedAt:                m.DeletedAt,
	}
}

// MovementsFromDomain converts domain movements to responses.
func MovementsFromDomain(movements []*domain.Movement) []*MovementResponse {
	result := make([]*MovementResponse, len(movements))
	for i, m := range movements {
		result[i] = MovementFromDomain(m)
	}
	return result
}

// MovementListResponse is one page of movements.
type MovementListResponse struct {
	Movements  []*MovementResponse `json:"movements"`
	HasMore    bool                `json:"has_more"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// MovementListFromResult converts a listing page to response.
func MovementListFromResult(r *usecase.ListMovementsResult) *MovementListResponse {
	return &MovementListResponse{
		Movements:  MovementsFromDomain(r.Movements),
		HasMore:    r.HasMore,
		NextCursor: r.NextCursor,
	}
}

// SplitResponse is a split parent with its children.
type SplitResponse struct {
	Parent   *MovementResponse   `json:"parent"`
	Children []*MovementResponse `json:"children"`
}

// SplitFromResult converts a split result to response.
func SplitFromResult(r *usecase.SplitResult) *SplitResponse {
	return &SplitResponse{
		Parent:   MovementFromDomain(r.Parent),
		Children: MovementsFromDomain(r.Children),
	}
}

// DistributionResponse is a distributed expense with its shares.
type DistributionResponse struct {
	Source         *MovementResponse   `json:"source"`
	DistributionID string              `json:"distribution_id"`
	Movements      []*MovementResponse `json:"movements"`
}

// DistributionFromResult converts a distribution result to response.
func DistributionFromResult(r *usecase.DistributionResult) *DistributionResponse {
	return &DistributionResponse{
		Source:         MovementFromDomain(r.Source),
		DistributionID: r.DistributionID,
		Movements:      MovementsFromDomain(r.Movements),
	}
}

// HistoryResponse represents an audit entry in API responses.
type HistoryResponse struct {
	ID         string    `json:"id"`
	MovementID string    `json:"movement_id"`
	UserID     string    `json:"user_id"`
	Action     string    `json:"action"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryFromDomain converts audit entries to responses.
func HistoryFromDomain(entries []*domain.MovementHistory) []*HistoryResponse {
	result := make([]*HistoryResponse, len(entries))
	for i, e := range entries {
		result[i] = &HistoryResponse{
			ID:         e.ID,
			MovementID: e.MovementID,
			UserID:     e.UserID,
			Action:     string(e.Action),
			Comment:    e.Comment,
			CreatedAt:  e.CreatedAt,
		}
	}
	return result
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind,omitempty"`
}
