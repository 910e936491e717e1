package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/iho/splitledger/internal/adapter/http/dto"
	"github.com/iho/splitledger/internal/domain"
	"github.com/iho/splitledger/internal/usecase"
)

// IdempotencyKeyHeader may carry the create idempotency key instead of the
// request body.
const IdempotencyKeyHeader = "Idempotency-Key"

// MovementService is the engine surface used by MovementHandler.
type MovementService interface {
	CreateMovement(ctx context.Context, input usecase.CreateMovementInput) (*domain.Movement, error)
	GetMovement(ctx context.Context, id string) (*domain.Movement, error)
	ListMovements(ctx context.Context, input usecase.ListMovementsInput) (*usecase.ListMovementsResult, error)
	ListChildren(ctx context.Context, parentID string) ([]*domain.Movement, error)
	GetHistory(ctx context.Context, movementID string) ([]*domain.MovementHistory, error)
	DeleteMovement(ctx context.Context, input usecase.DeleteMovementInput) error
	SplitMovement(ctx context.Context, input usecase.SplitMovementInput) (*usecase.SplitResult, error)
	UpdateSplitMovement(ctx context.Context, input usecase.SplitMovementInput) (*usecase.SplitResult, error)
	UnsplitMovement(ctx context.Context, input usecase.UnsplitMovementInput) (*domain.Movement, error)
	DistributeExpense(ctx context.Context, input usecase.DistributeExpenseInput) (*usecase.DistributionResult, error)
}

// MovementHandler handles movement-related HTTP requests.
type MovementHandler struct {
	movements MovementService
	retrier   usecase.Retrier
	validate  *validator.Validate
}

// NewMovementHandler creates a new MovementHandler. Mutations that fail with
// a conflict are re-run through retrier when it is not nil.
func NewMovementHandler(movements MovementService, retrier usecase.Retrier) *MovementHandler {
	return &MovementHandler{
		movements: movements,
		retrier:   retrier,
		validate:  dto.NewValidator(),
	}
}

func (h *MovementHandler) retry(ctx context.Context, op func() error) error {
	if h.retrier == nil {
		return op()
	}
	return h.retrier.Retry(ctx, op)
}

// Create creates a new movement.
func (h *MovementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", dto.ValidationMessage(err))
		return
	}

	input, err := req.ToUseCaseInput(userID(r), r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		writeDomainError(w, "invalid amount", err)
		return
	}

	var movement *domain.Movement
	err = h.retry(r.Context(), func() error {
		var opErr error
		movement, opErr = h.movements.CreateMovement(r.Context(), input)
		return opErr
	})
	if err != nil {
		writeDomainError(w, "failed to create movement", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.MovementFromDomain(movement))
}

// Get retrieves a movement by ID.
func (h *MovementHandler) Get(w http.ResponseWriter, r *http.Request) {
	movement, err := h.movements.GetMovement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get movement", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MovementFromDomain(movement))
}

// List lists movements, optionally narrowed to an area or a user.
func (h *MovementHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result, err := h.movements.ListMovements(r.Context(), usecase.ListMovementsInput{
		AreaID: q.Get("area_id"),
		UserID: q.Get("user_id"),
		Cursor: q.Get("cursor"),
		Limit:  parseIntQuery(r, "limit", 0),
	})
	if err != nil {
		writeDomainError(w, "failed to list movements", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MovementListFromResult(result))
}

// ListChildren lists the split or distribution children of a movement.
func (h *MovementHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.movements.ListChildren(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to list children", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MovementsFromDomain(children))
}

// History lists the audit trail of a movement.
func (h *MovementHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.movements.GetHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get history", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.HistoryFromDomain(entries))
}

// Delete soft-deletes a movement together with its children.
func (h *MovementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	input := usecase.DeleteMovementInput{
		MovementID: chi.URLParam(r, "id"),
		UserID:     userID(r),
	}

	err := h.retry(r.Context(), func() error {
		return h.movements.DeleteMovement(r.Context(), input)
	})
	if err != nil {
		writeDomainError(w, "failed to delete movement", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Split splits a movement into allocations.
func (h *MovementHandler) Split(w http.ResponseWriter, r *http.Request) {
	h.split(w, r, http.StatusCreated, "failed to split movement", h.movements.SplitMovement)
}

// UpdateSplit replaces the allocations of a split movement.
func (h *MovementHandler) UpdateSplit(w http.ResponseWriter, r *http.Request) {
	h.split(w, r, http.StatusOK, "failed to update split", h.movements.UpdateSplitMovement)
}

func (h *MovementHandler) split(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	failure string,
	op func(context.Context, usecase.SplitMovementInput) (*usecase.SplitResult, error),
) {
	movementID := chi.URLParam(r, "id")

	var req dto.SplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", dto.ValidationMessage(err))
		return
	}

	// Decimal amounts are converted with the parent's currency.
	var currency string
	if req.NeedsCurrency() {
		parent, err := h.movements.GetMovement(r.Context(), movementID)
		if err != nil {
			writeDomainError(w, failure, err)
			return
		}
		currency = parent.Currency
	}

	input, err := req.ToUseCaseInput(movementID, userID(r), currency)
	if err != nil {
		writeDomainError(w, "invalid amount", err)
		return
	}

	var result *usecase.SplitResult
	err = h.retry(r.Context(), func() error {
		var opErr error
		result, opErr = op(r.Context(), input)
		return opErr
	})
	if err != nil {
		writeDomainError(w, failure, err)
		return
	}

	writeJSON(w, status, dto.SplitFromResult(result))
}

// Unsplit removes the split of a movement.
func (h *MovementHandler) Unsplit(w http.ResponseWriter, r *http.Request) {
	input := usecase.UnsplitMovementInput{
		MovementID: chi.URLParam(r, "id"),
		UserID:     userID(r),
	}

	var parent *domain.Movement
	err := h.retry(r.Context(), func() error {
		var opErr error
		parent, opErr = h.movements.UnsplitMovement(r.Context(), input)
		return opErr
	})
	if err != nil {
		writeDomainError(w, "failed to unsplit movement", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MovementFromDomain(parent))
}

// Distribute distributes an expense equally across areas.
func (h *MovementHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	var req dto.DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input := req.ToUseCaseInput(chi.URLParam(r, "id"), userID(r))

	var result *usecase.DistributionResult
	err := h.retry(r.Context(), func() error {
		var opErr error
		result, opErr = h.movements.DistributeExpense(r.Context(), input)
		return opErr
	})
	if err != nil {
		writeDomainError(w, "failed to distribute expense", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.DistributionFromResult(result))
}
