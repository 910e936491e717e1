package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/splitledger/internal/domain"
	"github.com/iho/splitledger/internal/infrastructure/metrics"
)

// MovementUseCase is the movement engine: it creates, splits, distributes
// and deletes movements, each mutation inside a single transaction.
type MovementUseCase struct {
	txManager      TransactionManager
	movementRepo   MovementRepository
	areaRepo       AreaRepository
	departmentRepo DepartmentRepository
	bankRepo       BankAccountRepository
	accessRepo     AccessRepository
	historyRepo    HistoryRepository
	notifier       Notifier
	idGen          IDGenerator
	distIDGen      IDGenerator
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	now            func() time.Time
	listDefault    int
	listMax        int
}

// MovementUseCaseConfig holds the engine's collaborators.
type MovementUseCaseConfig struct {
	TxManager      TransactionManager
	MovementRepo   MovementRepository
	AreaRepo       AreaRepository
	DepartmentRepo DepartmentRepository
	BankRepo       BankAccountRepository
	AccessRepo     AccessRepository
	HistoryRepo    HistoryRepository
	Notifier       Notifier // optional
	IDGen          IDGenerator
	// DistributionIDGen generates distribution group ids; IDGen is used
	// when nil.
	DistributionIDGen IDGenerator
	Metrics           *metrics.Metrics // optional
	Logger            *zerolog.Logger  // optional
	Now               func() time.Time
	ListDefaultLimit  int
	ListMaxLimit      int
}

// NewMovementUseCase creates a new MovementUseCase.
func NewMovementUseCase(cfg MovementUseCaseConfig) *MovementUseCase {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ListDefaultLimit <= 0 {
		cfg.ListDefaultLimit = DefaultListLimit
	}
	if cfg.ListMaxLimit <= 0 {
		cfg.ListMaxLimit = MaxListLimit
	}
	if cfg.DistributionIDGen == nil {
		cfg.DistributionIDGen = cfg.IDGen
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &MovementUseCase{
		txManager:      cfg.TxManager,
		movementRepo:   cfg.MovementRepo,
		areaRepo:       cfg.AreaRepo,
		departmentRepo: cfg.DepartmentRepo,
		bankRepo:       cfg.BankRepo,
		accessRepo:     cfg.AccessRepo,
		historyRepo:    cfg.HistoryRepo,
		notifier:       cfg.Notifier,
		idGen:          cfg.IDGen,
		distIDGen:      cfg.DistributionIDGen,
		metrics:        cfg.Metrics,
		logger:         logger.With().Str("component", "movement_engine").Logger(),
		now:            cfg.Now,
		listDefault:    cfg.ListDefaultLimit,
		listMax:        cfg.ListMaxLimit,
	}
}

// CreateMovementInput represents input for creating a movement.
type CreateMovementInput struct {
	SourceBankAccountID      string
	DestinationBankAccountID *string
	AreaID                   string
	DepartmentID             *string
	UserID                   string
	Type                     domain.MovementType
	Amount                   int64
	Currency                 string
	Description              string
	Category                 *string
	Reference                *string
	TransactionDate          time.Time
	IdempotencyKey           *string
}

func (in CreateMovementInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return domain.BadRequest(domain.ErrMissingUser, "User id is required")
	}
	if !in.Type.IsValid() {
		return domain.BadRequest(domain.ErrInvalidType, "Unknown movement type %q", in.Type)
	}
	if in.Type == domain.MovementTypeDistribution {
		return domain.BadRequest(domain.ErrInvalidType, "DISTRIBUTION movements are only created by distributing an expense")
	}
	if in.DestinationBankAccountID != nil && *in.DestinationBankAccountID != "" && !in.Type.AcceptsDestination() {
		return domain.BadRequest(domain.ErrInvalidDestination, "Destination bank account is only allowed on TRANSFER movements")
	}
	if err := domain.ValidateAmount(in.Amount); err != nil {
		return err
	}
	if err := domain.ValidateCurrency(in.Currency); err != nil {
		return err
	}
	return domain.ValidateDescription(in.Description)
}

// CreateMovement records a new draft movement. Re-submitting an idempotency
// key returns the movement created by the first call unchanged.
func (uc *MovementUseCase) CreateMovement(ctx context.Context, input CreateMovementInput) (_ *domain.Movement, err error) {
	start := time.Now()
	defer func() { uc.observe(opCreate, start, err) }()

	if err := input.validate(); err != nil {
		return nil, err
	}

	key := ""
	if input.IdempotencyKey != nil {
		key = strings.TrimSpace(*input.IdempotencyKey)
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if key != "" {
		existing, err := uc.movementRepo.GetByIdempotencyKeyTx(ctx, tx, key)
		if err == nil {
			uc.replayed(existing)
			return existing, nil
		}
		if !errors.Is(err, domain.ErrMovementNotFound) {
			return nil, err
		}
	}

	area, err := uc.loadArea(ctx, tx, input.AreaID)
	if err != nil {
		return nil, err
	}
	if input.DepartmentID != nil {
		if err := uc.checkDepartment(ctx, tx, input.AreaID, *input.DepartmentID); err != nil {
			return nil, err
		}
	}

	if _, err := uc.loadBankAccount(ctx, tx, input.SourceBankAccountID); err != nil {
		return nil, err
	}

	var destination *string
	if input.DestinationBankAccountID != nil && *input.DestinationBankAccountID != "" {
		if _, err := uc.loadBankAccount(ctx, tx, *input.DestinationBankAccountID); err != nil {
			return nil, err
		}
		destination = input.DestinationBankAccountID
	}

	currency := domain.NormalizeCurrency(input.Currency)
	if area.Currency != "" && currency != domain.NormalizeCurrency(area.Currency) {
		return nil, domain.BadRequest(domain.ErrCurrencyMismatch,
			"Currency %s does not match area currency %s", currency, area.Currency)
	}

	ok, err := uc.accessRepo.HasAreaAccess(ctx, tx, input.UserID, input.AreaID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Forbidden(domain.ErrNoAreaAccess, "User %s has no access to area %s", input.UserID, input.AreaID)
	}

	now := uc.now().UTC()
	transactionDate := input.TransactionDate
	if transactionDate.IsZero() {
		transactionDate = now
	}

	movement := &domain.Movement{
		ID:                       uc.idGen.Generate(),
		Amount:                   input.Amount,
		Currency:                 currency,
		SourceBankAccountID:      input.SourceBankAccountID,
		DestinationBankAccountID: destination,
		AreaID:                   input.AreaID,
		DepartmentID:             input.DepartmentID,
		UserID:                   input.UserID,
		Type:                     input.Type,
		Status:                   domain.MovementStatusDraft,
		Description:              input.Description,
		Category:                 input.Category,
		Reference:                input.Reference,
		TransactionDate:          transactionDate,
		IsInternalTransfer:       domain.InternalTransfer(input.SourceBankAccountID, destination),
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if key != "" {
		movement.IdempotencyKey = &key
	}

	if err := uc.movementRepo.Create(ctx, tx, movement); err != nil {
		if key != "" && errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			// A concurrent submission with the same key won the insert.
			_ = tx.Rollback(ctx)
			return uc.winnerOf(ctx, key)
		}
		return nil, err
	}

	if err := uc.record(ctx, tx, movement.ID, input.UserID, domain.HistoryActionCreate,
		fmt.Sprintf("Movement created: %s %s %s", movement.Type, domain.FormatMinorUnits(movement.Amount, currency), currency), now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.MovementsCreated.Inc()
		uc.metrics.MovementAmount.WithLabelValues(string(movement.Type)).Observe(float64(movement.Amount))
	}

	uc.logger.Info().
		Str("movement_id", movement.ID).
		Str("area_id", movement.AreaID).
		Str("type", string(movement.Type)).
		Int64("amount", movement.Amount).
		Bool("internal_transfer", movement.IsInternalTransfer).
		Msg("movement created")

	uc.notify(ctx, domain.ChangeNotification{
		Type:       domain.EventTypeMovementCreated,
		MovementID: movement.ID,
		AreaIDs:    []string{movement.AreaID},
		Amount:     movement.Amount,
		Currency:   movement.Currency,
		OccurredAt: now,
		Extra: map[string]any{
			"movement_type":     string(movement.Type),
			"internal_transfer": movement.IsInternalTransfer,
		},
	})

	return movement, nil
}

func (uc *MovementUseCase) winnerOf(ctx context.Context, key string) (*domain.Movement, error) {
	existing, err := uc.movementRepo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrMovementNotFound) {
			return nil, domain.Conflict(domain.ErrDuplicateIdempotencyKey, "Idempotency key %s is being used by a concurrent request", key)
		}
		return nil, err
	}
	uc.replayed(existing)
	return existing, nil
}

func (uc *MovementUseCase) replayed(m *domain.Movement) {
	if uc.metrics != nil {
		uc.metrics.MovementsReplayed.Inc()
	}
	uc.logger.Debug().Str("movement_id", m.ID).Msg("idempotent create replayed")
}

// GetMovement retrieves a non-deleted movement by ID.
func (uc *MovementUseCase) GetMovement(ctx context.Context, id string) (*domain.Movement, error) {
	return uc.movementRepo.GetByID(ctx, id)
}

// ListChildren lists the children of a split parent or distribution source.
func (uc *MovementUseCase) ListChildren(ctx context.Context, parentID string) ([]*domain.Movement, error) {
	if _, err := uc.movementRepo.GetByID(ctx, parentID); err != nil {
		return nil, err
	}
	return uc.movementRepo.ListChildren(ctx, parentID)
}

// GetHistory lists the audit trail of a movement.
func (uc *MovementUseCase) GetHistory(ctx context.Context, movementID string) ([]*domain.MovementHistory, error) {
	if _, err := uc.movementRepo.GetByID(ctx, movementID); err != nil {
		return nil, err
	}
	return uc.historyRepo.ListByMovement(ctx, movementID)
}

// DeleteMovementInput represents input for soft-deleting a movement.
type DeleteMovementInput struct {
	MovementID string
	UserID     string
}

// DeleteMovement soft-deletes a movement together with its children. A child
// of a split parent cannot be deleted on its own because the remaining
// children would no longer sum to the parent amount.
func (uc *MovementUseCase) DeleteMovement(ctx context.Context, input DeleteMovementInput) (err error) {
	start := time.Now()
	defer func() { uc.observe(opDelete, start, err) }()

	if strings.TrimSpace(input.UserID) == "" {
		return domain.BadRequest(domain.ErrMissingUser, "User id is required")
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	movement, err := uc.movementRepo.GetByIDForUpdate(ctx, tx, input.MovementID)
	if err != nil {
		return err
	}

	if movement.IsChild() {
		parent, err := uc.movementRepo.GetByIDTx(ctx, tx, *movement.ParentID)
		if err != nil && !errors.Is(err, domain.ErrMovementNotFound) {
			return err
		}
		if parent != nil && parent.IsSplitParent {
			return domain.BadRequest(domain.ErrDeleteChildOfSplit,
				"Cannot delete a split child; update or remove the split of movement %s instead", parent.ID)
		}
	}

	children, err := uc.movementRepo.ListChildrenTx(ctx, tx, movement.ID)
	if err != nil {
		return err
	}

	now := uc.now().UTC()
	if err := uc.movementRepo.SoftDelete(ctx, tx, movement.ID, now); err != nil {
		return err
	}

	removed, err := uc.movementRepo.SoftDeleteChildren(ctx, tx, movement.ID, now)
	if err != nil {
		return err
	}

	if err := uc.record(ctx, tx, movement.ID, input.UserID, domain.HistoryActionDelete,
		fmt.Sprintf("Movement deleted together with %d children", removed), now); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.MovementsDeleted.Inc()
	}

	uc.logger.Info().
		Str("movement_id", movement.ID).
		Int64("children_deleted", removed).
		Msg("movement deleted")

	n := domain.ChangeNotification{
		Type:       domain.EventTypeMovementDeleted,
		MovementID: movement.ID,
		AreaIDs:    []string{movement.AreaID},
		Amount:     movement.Amount,
		Currency:   movement.Currency,
		OccurredAt: now,
	}
	for _, c := range children {
		n.AddArea(c.AreaID)
	}
	uc.notify(ctx, n)

	return nil
}

// ListMovementsInput represents input for listing movements.
type ListMovementsInput struct {
	AreaID string
	UserID string
	Cursor string
	Limit  int
}

// ListMovementsResult is one page of movements.
type ListMovementsResult struct {
	Movements  []*domain.Movement
	HasMore    bool
	NextCursor string
}

// ListMovements lists non-deleted movements, newest transaction date first.
func (uc *MovementUseCase) ListMovements(ctx context.Context, input ListMovementsInput) (_ *ListMovementsResult, err error) {
	start := time.Now()
	defer func() { uc.observe(opList, start, err) }()

	limit := domain.ValidatePageSize(input.Limit, uc.listDefault, uc.listMax)

	// Fetch one extra row to learn whether another page exists.
	movements, err := uc.movementRepo.List(ctx, MovementFilter{
		AreaID: input.AreaID,
		UserID: input.UserID,
		Cursor: input.Cursor,
		Limit:  limit + 1,
	})
	if err != nil {
		return nil, err
	}

	result := &ListMovementsResult{Movements: movements}
	if len(movements) > limit {
		result.Movements = movements[:limit]
		result.HasMore = true
		result.NextCursor = result.Movements[limit-1].ID
	}

	return result, nil
}

func (uc *MovementUseCase) loadArea(ctx context.Context, tx Transaction, id string) (*domain.Area, error) {
	area, err := uc.areaRepo.GetByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAreaNotFound) {
			return nil, domain.NotFound(domain.ErrAreaNotFound, "Area %s not found", id)
		}
		return nil, err
	}
	return area, nil
}

func (uc *MovementUseCase) checkDepartment(ctx context.Context, tx Transaction, areaID, departmentID string) error {
	department, err := uc.departmentRepo.GetByID(ctx, tx, departmentID)
	if err != nil {
		if errors.Is(err, domain.ErrDepartmentNotFound) {
			return domain.NotFound(domain.ErrDepartmentNotFound, "Department %s not found", departmentID)
		}
		return err
	}
	if !department.BelongsTo(areaID) {
		return domain.BadRequest(domain.ErrDepartmentAreaMismatch, "Department %s does not belong to area %s", departmentID, areaID)
	}
	return nil
}

func (uc *MovementUseCase) loadBankAccount(ctx context.Context, tx Transaction, id string) (*domain.BankAccount, error) {
	account, err := uc.bankRepo.GetByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, domain.ErrBankAccountNotFound) {
			return nil, domain.NotFound(domain.ErrBankAccountNotFound, "Bank account %s not found", id)
		}
		return nil, err
	}
	return account, nil
}

func (uc *MovementUseCase) record(ctx context.Context, tx Transaction, movementID, userID string, action domain.HistoryAction, comment string, at time.Time) error {
	return uc.historyRepo.Create(ctx, tx, &domain.MovementHistory{
		ID:         uc.idGen.Generate(),
		MovementID: movementID,
		UserID:     userID,
		Action:     action,
		Comment:    comment,
		CreatedAt:  at,
	})
}

func (uc *MovementUseCase) notify(ctx context.Context, n domain.ChangeNotification) {
	if uc.notifier == nil {
		return
	}
	uc.notifier.Notify(context.WithoutCancel(ctx), n)
}

func (uc *MovementUseCase) observe(op string, start time.Time, err error) {
	if err != nil {
		uc.logger.Debug().Err(err).Str("operation", op).Str("kind", string(domain.KindOf(err))).Msg("operation failed")
	}
	if uc.metrics == nil {
		return
	}
	uc.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		uc.metrics.OperationErrors.WithLabelValues(op, string(domain.KindOf(err))).Inc()
	}
}
