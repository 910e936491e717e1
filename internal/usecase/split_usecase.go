package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iho/splitledger/internal/domain"
)

// SplitMovementInput represents input for splitting a movement.
type SplitMovementInput struct {
	MovementID  string
	Allocations []domain.Allocation
	UserID      string
}

// SplitResult is the parent of a split together with its current children.
type SplitResult struct {
	Parent   *domain.Movement
	Children []*domain.Movement
}

func (in SplitMovementInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return domain.BadRequest(domain.ErrMissingUser, "User id is required")
	}
	if len(in.Allocations) < MinSplitAllocations {
		return domain.BadRequest(domain.ErrTooFewAllocations, "At least %d allocations are required to split a movement", MinSplitAllocations)
	}
	for i, a := range in.Allocations {
		if strings.TrimSpace(a.AreaID) == "" {
			return domain.BadRequest(domain.ErrAreaNotFound, "Allocation %d has no area", i+1)
		}
		if a.Amount <= 0 {
			return domain.BadRequest(domain.ErrInvalidAmount, "Allocation %d amount must be positive, got %d", i+1, a.Amount)
		}
		if err := domain.ValidateAmount(a.Amount); err != nil {
			return domain.BadRequest(domain.ErrInvalidAmount, "Allocation %d: %s", i+1, err)
		}
		if a.Description != nil {
			if err := domain.ValidateDescription(*a.Description); err != nil {
				return err
			}
		}
	}
	return nil
}

// SplitMovement subdivides a movement into child allocations that sum exactly
// to its amount and flags it as a split parent.
func (uc *MovementUseCase) SplitMovement(ctx context.Context, input SplitMovementInput) (_ *SplitResult, err error) {
	start := time.Now()
	defer func() { uc.observe(opSplit, start, err) }()

	if err := input.validate(); err != nil {
		return nil, err
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	parent, err := uc.movementRepo.GetByIDForUpdate(ctx, tx, input.MovementID)
	if err != nil {
		return nil, err
	}

	if parent.IsSplitParent {
		return nil, domain.BadRequest(domain.ErrAlreadySplit, "Movement is already split; use update split instead")
	}
	if parent.IsChild() {
		return nil, domain.BadRequest(domain.ErrSplitChild, "Cannot split a movement that is itself a split child")
	}

	existing, err := uc.movementRepo.ListChildrenTx(ctx, tx, parent.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, domain.BadRequest(domain.ErrAlreadyDistributed, "Cannot split a movement that has already been distributed")
	}

	if err := uc.checkAllocations(ctx, tx, parent, input.Allocations); err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	if err := uc.movementRepo.SetSplitParent(ctx, tx, parent.ID, true, now); err != nil {
		return nil, err
	}

	children, err := uc.createChildren(ctx, tx, parent, input.Allocations, input.UserID, now)
	if err != nil {
		return nil, err
	}

	comment := fmt.Sprintf("Movement split into %s", domain.DescribeAllocationCount(len(children)))
	if err := uc.record(ctx, tx, parent.ID, input.UserID, domain.HistoryActionSplit, comment, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	parent.IsSplitParent = true
	parent.UpdatedAt = now

	if uc.metrics != nil {
		uc.metrics.MovementsSplit.Inc()
		uc.metrics.ChildrenCreated.WithLabelValues(opSplit).Add(float64(len(children)))
	}

	uc.logger.Info().
		Str("movement_id", parent.ID).
		Int("children", len(children)).
		Int64("amount", parent.Amount).
		Msg("movement split")

	uc.notify(ctx, splitNotification(domain.EventTypeMovementSplit, parent, children, now))

	return &SplitResult{Parent: parent, Children: children}, nil
}

// UpdateSplitMovement replaces every child of a split parent with a new
// allocation list. Children not resupplied are discarded.
func (uc *MovementUseCase) UpdateSplitMovement(ctx context.Context, input SplitMovementInput) (_ *SplitResult, err error) {
	start := time.Now()
	defer func() { uc.observe(opUpdateSplit, start, err) }()

	if err := input.validate(); err != nil {
		return nil, err
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	parent, err := uc.movementRepo.GetByIDForUpdate(ctx, tx, input.MovementID)
	if err != nil {
		return nil, err
	}

	if parent.IsChild() {
		return nil, domain.BadRequest(domain.ErrSplitChild, "Cannot split a movement that is itself a split child")
	}
	if !parent.IsSplitParent {
		return nil, domain.BadRequest(domain.ErrNotSplit, "Movement is not split")
	}

	if err := uc.checkAllocations(ctx, tx, parent, input.Allocations); err != nil {
		return nil, err
	}

	removed, err := uc.movementRepo.DeleteChildren(ctx, tx, parent.ID)
	if err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	children, err := uc.createChildren(ctx, tx, parent, input.Allocations, input.UserID, now)
	if err != nil {
		return nil, err
	}

	if err := uc.movementRepo.SetSplitParent(ctx, tx, parent.ID, true, now); err != nil {
		return nil, err
	}

	comment := fmt.Sprintf("Split updated from %s to %s",
		domain.DescribeAllocationCount(int(removed)), domain.DescribeAllocationCount(len(children)))
	if err := uc.record(ctx, tx, parent.ID, input.UserID, domain.HistoryActionSplit, comment, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	parent.UpdatedAt = now

	if uc.metrics != nil {
		uc.metrics.SplitsUpdated.Inc()
		uc.metrics.ChildrenCreated.WithLabelValues(opUpdateSplit).Add(float64(len(children)))
	}

	uc.logger.Info().
		Str("movement_id", parent.ID).
		Int64("children_removed", removed).
		Int("children", len(children)).
		Msg("movement split updated")

	uc.notify(ctx, splitNotification(domain.EventTypeMovementSplitUpdate, parent, children, now))

	return &SplitResult{Parent: parent, Children: children}, nil
}

// UnsplitMovementInput represents input for removing a split.
type UnsplitMovementInput struct {
	MovementID string
	UserID     string
}

// UnsplitMovement removes every child of a split parent and makes the
// parent's own amount authoritative again.
func (uc *MovementUseCase) UnsplitMovement(ctx context.Context, input UnsplitMovementInput) (_ *domain.Movement, err error) {
	start := time.Now()
	defer func() { uc.observe(opUnsplit, start, err) }()

	if strings.TrimSpace(input.UserID) == "" {
		return nil, domain.BadRequest(domain.ErrMissingUser, "User id is required")
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	parent, err := uc.movementRepo.GetByIDForUpdate(ctx, tx, input.MovementID)
	if err != nil {
		return nil, err
	}
	if !parent.IsSplitParent {
		return nil, domain.BadRequest(domain.ErrNotSplit, "Movement is not split")
	}

	children, err := uc.movementRepo.ListChildrenTx(ctx, tx, parent.ID)
	if err != nil {
		return nil, err
	}

	removed, err := uc.movementRepo.DeleteChildren(ctx, tx, parent.ID)
	if err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	if err := uc.movementRepo.SetSplitParent(ctx, tx, parent.ID, false, now); err != nil {
		return nil, err
	}

	comment := fmt.Sprintf("Split removed, %d children deleted", removed)
	if err := uc.record(ctx, tx, parent.ID, input.UserID, domain.HistoryActionSplit, comment, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	parent.IsSplitParent = false
	parent.UpdatedAt = now

	if uc.metrics != nil {
		uc.metrics.MovementsUnsplit.Inc()
	}

	uc.logger.Info().
		Str("movement_id", parent.ID).
		Int64("children_removed", removed).
		Msg("movement unsplit")

	uc.notify(ctx, splitNotification(domain.EventTypeMovementUnsplit, parent, children, now))

	return parent, nil
}

// checkAllocations validates the sum and every referenced area and
// department of a split before anything is written.
func (uc *MovementUseCase) checkAllocations(ctx context.Context, tx Transaction, parent *domain.Movement, allocations []domain.Allocation) error {
	total, err := domain.SumAllocations(allocations)
	if err != nil {
		return err
	}
	if total != parent.Amount {
		return domain.BadRequest(domain.ErrSplitSumMismatch,
			"Total allocated amount (%s) must equal parent amount (%s)",
			domain.FormatMinorUnits(total, parent.Currency),
			domain.FormatMinorUnits(parent.Amount, parent.Currency))
	}

	for _, a := range allocations {
		if _, err := uc.loadArea(ctx, tx, a.AreaID); err != nil {
			return err
		}
		if a.DepartmentID != nil {
			if err := uc.checkDepartment(ctx, tx, a.AreaID, *a.DepartmentID); err != nil {
				return err
			}
		}
	}

	return nil
}

func (uc *MovementUseCase) createChildren(ctx context.Context, tx Transaction, parent *domain.Movement, allocations []domain.Allocation, userID string, now time.Time) ([]*domain.Movement, error) {
	children := make([]*domain.Movement, 0, len(allocations))
	for _, a := range allocations {
		child := parent.SplitChild(uc.idGen.Generate(), a, userID, now)
		if err := uc.movementRepo.Create(ctx, tx, child); err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func splitNotification(eventType string, parent *domain.Movement, children []*domain.Movement, at time.Time) domain.ChangeNotification {
	n := domain.ChangeNotification{
		Type:       eventType,
		MovementID: parent.ID,
		AreaIDs:    []string{parent.AreaID},
		Amount:     parent.Amount,
		Currency:   parent.Currency,
		OccurredAt: at,
		Extra:      map[string]any{"children": len(children)},
	}
	for _, c := range children {
		n.AddArea(c.AreaID)
	}
	return n
}
