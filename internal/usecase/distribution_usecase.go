package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iho/splitledger/internal/domain"
)

// DistributeExpenseInput represents input for distributing an expense.
type DistributeExpenseInput struct {
	MovementID string
	AreaIDs    []string
	UserID     string
}

// DistributionResult holds the source expense and the movements produced
// for each target area, in target order.
type DistributionResult struct {
	Source         *domain.Movement
	DistributionID string
	Movements      []*domain.Movement
}

func (in DistributeExpenseInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return domain.BadRequest(domain.ErrMissingUser, "User id is required")
	}
	if len(in.AreaIDs) == 0 {
		return domain.BadRequest(domain.ErrNoDistributionTargets, "At least one target area is required")
	}

	// An area listed twice receives two shares.
	for _, id := range in.AreaIDs {
		if strings.TrimSpace(id) == "" {
			return domain.BadRequest(domain.ErrNoDistributionTargets, "Target area id must not be empty")
		}
	}
	return nil
}

// DistributeExpense divides an EXPENSE movement across target areas. Every
// area receives a DISTRIBUTION movement and the amounts sum exactly to the
// source amount.
func (uc *MovementUseCase) DistributeExpense(ctx context.Context, input DistributeExpenseInput) (_ *DistributionResult, err error) {
	start := time.Now()
	defer func() { uc.observe(opDistribute, start, err) }()

	if err := input.validate(); err != nil {
		return nil, err
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	source, err := uc.movementRepo.GetByIDForUpdate(ctx, tx, input.MovementID)
	if err != nil {
		return nil, err
	}

	if !source.Type.Distributable() {
		return nil, domain.BadRequest(domain.ErrDistributionNotExpense, "Only EXPENSE movements can be distributed")
	}
	if source.IsSplitParent {
		return nil, domain.BadRequest(domain.ErrAlreadySplit, "Cannot distribute a movement that is split")
	}
	if source.IsChild() {
		return nil, domain.BadRequest(domain.ErrSplitChild, "Cannot distribute a child movement")
	}

	existing, err := uc.movementRepo.ListChildrenTx(ctx, tx, source.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, domain.BadRequest(domain.ErrAlreadyDistributed, "Movement has already been distributed")
	}

	areas := make([]*domain.Area, 0, len(input.AreaIDs))
	for _, id := range input.AreaIDs {
		area, err := uc.loadArea(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if area.Currency != "" && domain.NormalizeCurrency(area.Currency) != source.Currency {
			return nil, domain.BadRequest(domain.ErrCurrencyMismatch,
				"Area %s currency %s does not match movement currency %s", area.ID, area.Currency, source.Currency)
		}
		areas = append(areas, area)
	}

	amounts, err := domain.Distribute(source.Amount, len(areas))
	if err != nil {
		return nil, domain.BadRequest(domain.ErrInvalidAmount, "Cannot distribute amount %d across %d areas", source.Amount, len(areas))
	}

	now := uc.now().UTC()
	distributionID := uc.distIDGen.Generate()
	description := "Distribution of: " + source.Description

	movements := make([]*domain.Movement, 0, len(areas))
	for i, area := range areas {
		parentID := source.ID
		movement := &domain.Movement{
			ID:                  uc.idGen.Generate(),
			Amount:              amounts[i],
			Currency:            source.Currency,
			SourceBankAccountID: source.SourceBankAccountID,
			AreaID:              area.ID,
			UserID:              input.UserID,
			Type:                domain.MovementTypeDistribution,
			Status:              domain.MovementStatusApproved,
			Description:         description,
			Category:            source.Category,
			Reference:           source.Reference,
			TransactionDate:     source.TransactionDate,
			ParentID:            &parentID,
			DistributionID:      &distributionID,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := uc.movementRepo.Create(ctx, tx, movement); err != nil {
			return nil, err
		}
		movements = append(movements, movement)
	}

	if err := uc.record(ctx, tx, source.ID, input.UserID, domain.HistoryActionDistribute,
		distributionComment(source, areas, amounts), now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.MovementsDistributed.Inc()
		uc.metrics.ChildrenCreated.WithLabelValues(opDistribute).Add(float64(len(movements)))
	}

	uc.logger.Info().
		Str("movement_id", source.ID).
		Str("distribution_id", distributionID).
		Int("areas", len(areas)).
		Str("amounts", domain.FormatAmountList(amounts, source.Currency)).
		Msg("expense distributed")

	n := domain.ChangeNotification{
		Type:       domain.EventTypeMovementDistributed,
		MovementID: source.ID,
		AreaIDs:    []string{source.AreaID},
		Amount:     source.Amount,
		Currency:   source.Currency,
		OccurredAt: now,
		Extra:      map[string]any{"distribution_id": distributionID},
	}
	for _, area := range areas {
		n.AddArea(area.ID)
	}
	uc.notify(ctx, n)

	return &DistributionResult{
		Source:         source,
		DistributionID: distributionID,
		Movements:      movements,
	}, nil
}

func distributionComment(source *domain.Movement, areas []*domain.Area, amounts []int64) string {
	parts := make([]string, len(areas))
	for i, area := range areas {
		name := area.Code
		if name == "" {
			name = area.ID
		}
		parts[i] = fmt.Sprintf("%s %s", name, domain.FormatMinorUnits(amounts[i], source.Currency))
	}
	return fmt.Sprintf("Distributed %s %s across %d areas: %s",
		domain.FormatMinorUnits(source.Amount, source.Currency), source.Currency, len(areas), strings.Join(parts, ", "))
}
