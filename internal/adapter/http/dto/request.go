package dto

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/iho/splitledger/internal/domain"
	"github.com/iho/splitledger/internal/usecase"
)

// Amounts are accepted either as a major-unit decimal ("amount": "123.45")
// or as integer minor units ("amount_minor": 12345). amount_minor wins when
// both are present.

// CreateMovementRequest represents a request to create a movement.
type CreateMovementRequest struct {
	SourceBankAccountID      string           `json:"source_bank_account_id" validate:"required"`
	DestinationBankAccountID *string          `json:"destination_bank_account_id,omitempty"`
	AreaID                   string           `json:"area_id"                validate:"required"`
	DepartmentID             *string          `json:"department_id,omitempty"`
	Type                     string           `json:"type"                   validate:"required,oneof=INCOME EXPENSE TRANSFER DISTRIBUTION"`
	Amount                   *decimal.Decimal `json:"amount,omitempty"       validate:"required_without=AmountMinor"`
	AmountMinor              *int64           `json:"amount_minor,omitempty" validate:"required_without=Amount"`
	Currency                 string           `json:"currency"               validate:"required,len=3,alpha"`
	Description              string           `json:"description"`
	Category                 *string          `json:"category,omitempty"`
	Reference                *string          `json:"reference,omitempty"`
	TransactionDate          *time.Time       `json:"transaction_date,omitempty"`
	IdempotencyKey           *string          `json:"idempotency_key,omitempty"`
}

// ToUseCaseInput converts to use case input. headerKey is used when the body
// carries no idempotency key.
func (r *CreateMovementRequest) ToUseCaseInput(userID, headerKey string) (usecase.CreateMovementInput, error) {
	amount, err := minorUnits(r.Amount, r.AmountMinor, r.Currency)
	if err != nil {
		return usecase.CreateMovementInput{}, err
	}

	input := usecase.CreateMovementInput{
		SourceBankAccountID:      r.SourceBankAccountID,
		DestinationBankAccountID: r.DestinationBankAccountID,
		AreaID:                   r.AreaID,
		DepartmentID:             r.DepartmentID,
		UserID:                   userID,
		Type:                     domain.MovementType(strings.ToUpper(r.Type)),
		Amount:                   amount,
		Currency:                 r.Currency,
		Description:              r.Description,
		Category:                 r.Category,
		Reference:                r.Reference,
		IdempotencyKey:           r.IdempotencyKey,
	}
	if r.TransactionDate != nil {
		input.TransactionDate = *r.TransactionDate
	}
	if input.IdempotencyKey == nil && headerKey != "" {
		input.IdempotencyKey = &headerKey
	}

	return input, nil
}

// AllocationRequest is one share of a split.
type AllocationRequest struct {
	AreaID       string           `json:"area_id"                validate:"required"`
	DepartmentID *string          `json:"department_id,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"       validate:"required_without=AmountMinor"`
	AmountMinor  *int64           `json:"amount_minor,omitempty" validate:"required_without=Amount"`
	Description  *string          `json:"description,omitempty"`
}

// SplitRequest represents a request to split a movement or replace its split.
type SplitRequest struct {
	Allocations []AllocationRequest `json:"allocations" validate:"dive"`
}

// NeedsCurrency reports whether any allocation is given in major units and
// therefore needs the parent's currency to be converted.
func (r *SplitRequest) NeedsCurrency() bool {
	for _, a := range r.Allocations {
		if a.AmountMinor == nil {
			return true
		}
	}
	return false
}

// ToUseCaseInput converts to use case input. currency is the parent's
// currency.
func (r *SplitRequest) ToUseCaseInput(movementID, userID, currency string) (usecase.SplitMovementInput, error) {
	allocations := make([]domain.Allocation, len(r.Allocations))
	for i, a := range r.Allocations {
		amount, err := minorUnits(a.Amount, a.AmountMinor, currency)
		if err != nil {
			return usecase.SplitMovementInput{}, err
		}
		allocations[i] = domain.Allocation{
			AreaID:       a.AreaID,
			DepartmentID: a.DepartmentID,
			Amount:       amount,
			Description:  a.Description,
		}
	}

	return usecase.SplitMovementInput{
		MovementID:  movementID,
		Allocations: allocations,
		UserID:      userID,
	}, nil
}

// DistributeRequest represents a request to distribute an expense.
type DistributeRequest struct {
	AreaIDs []string `json:"area_ids"`
}

// ToUseCaseInput converts to use case input.
func (r *DistributeRequest) ToUseCaseInput(movementID, userID string) usecase.DistributeExpenseInput {
	return usecase.DistributeExpenseInput{
		MovementID: movementID,
		AreaIDs:    r.AreaIDs,
		UserID:     userID,
	}
}

func minorUnits(amount *decimal.Decimal, minor *int64, currency string) (int64, error) {
	if minor != nil {
		return *minor, nil
	}
	if amount == nil {
		return 0, domain.BadRequest(domain.ErrInvalidAmount, "Amount is required")
	}
	return domain.ToMinorUnits(*amount, currency)
}

// NewValidator returns a validator reporting fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationMessage renders validator errors as a single sentence.
func ValidationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fieldMessage(fe))
	}
	return strings.Join(parts, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_without":
		return field + " or " + strings.ToLower(fe.Param()) + " is required"
	case "oneof":
		return field + " must be one of " + fe.Param()
	case "len":
		return field + " must be " + fe.Param() + " characters long"
	default:
		return field + " is invalid"
	}
}
