package usecase_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/splitledger/internal/domain"
	"github.com/iho/splitledger/internal/usecase"
)

func sumAmounts(ms []*domain.Movement) int64 {
	var total int64
	for _, m := range ms {
		total += m.Amount
	}
	return total
}

func TestMovementUseCase_SplitMovement(t *testing.T) {
	f := newFixture(t)
	parent := f.seed("parent", 10_000, func(m *domain.Movement) {
		m.Reference = strPtr("INV-2025-031")
		m.DestinationBankAccountID = nil
	})

	result, err := f.uc.SplitMovement(context.Background(), usecase.SplitMovementInput{
		MovementID: "parent",
		UserID:     "user-2",
		Allocations: []domain.Allocation{
			{AreaID: "area-a", DepartmentID: strPtr("dept-a1"), Amount: 5_000},
			{AreaID: "area-b", DepartmentID: strPtr("dept-b1"), Amount: 2_500, Description: strPtr("Marketing share")},
			{AreaID: "area-c", Amount: 2_500},
		},
	})
	require.NoError(t, err)

	assert.True(t, result.Parent.IsSplitParent)
	require.Len(t, result.Children, 3)
	assert.Equal(t, int64(10_000), sumAmounts(result.Children))

	stored, _ := f.store.Movement("parent")
	assert.True(t, stored.IsSplitParent)
	assert.Nil(t, stored.ParentID)

	children := f.store.ChildrenOf("parent")
	require.Len(t, children, 3)
	assert.Equal(t, int64(10_000), sumAmounts(children))

	for _, c := range result.Children {
		require.NotNil(t, c.ParentID)
		assert.Equal(t, "parent", *c.ParentID)
		assert.Equal(t, parent.SourceBankAccountID, c.SourceBankAccountID)
		assert.Equal(t, parent.Type, c.Type)
		assert.Equal(t, parent.Status, c.Status)
		assert.Equal(t, parent.Currency, c.Currency)
		assert.Equal(t, parent.TransactionDate, c.TransactionDate)
		assert.Equal(t, parent.Reference, c.Reference)
		assert.Equal(t, parent.IsInternalTransfer, c.IsInternalTransfer)
		assert.False(t, c.IsSplitParent)
		assert.Equal(t, "user-2", c.UserID)
	}

	assert.Equal(t, "Split from: Office rent", result.Children[0].Description)
	assert.Equal(t, "Marketing share", result.Children[1].Description)
	assert.Equal(t, "area-c", result.Children[2].AreaID)
	assert.Nil(t, result.Children[2].DepartmentID)

	history := f.store.History()
	require.Len(t, history, 1)
	assert.Equal(t, domain.HistoryActionSplit, history[0].Action)
	assert.Equal(t, "parent", history[0].MovementID)
	assert.Contains(t, history[0].Comment, "3 allocations")

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.MovementsSplit))
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.ChildrenCreated.WithLabelValues("split")))
}

func TestMovementUseCase_SplitMovement_InheritsInternalTransfer(t *testing.T) {
	f := newFixture(t)
	f.seed("transfer", 800, func(m *domain.Movement) {
		m.Type = domain.MovementTypeTransfer
		m.DestinationBankAccountID = strPtr("bank-1")
		m.IsInternalTransfer = true
	})

	result, err := f.uc.SplitMovement(context.Background(), usecase.SplitMovementInput{
		MovementID: "transfer",
		UserID:     "user-1",
		Allocations: []domain.Allocation{
			{AreaID: "area-a", Amount: 300},
			{AreaID: "area-b", Amount: 500},
		},
	})
	require.NoError(t, err)

	for _, c := range result.Children {
		assert.True(t, c.IsInternalTransfer)
		assert.Equal(t, domain.MovementTypeTransfer, c.Type)
		require.NotNil(t, c.DestinationBankAccountID)
		assert.Equal(t, "bank-1", *c.DestinationBankAccountID)
	}
}

func TestMovementUseCase_SplitMovement_Rejections(t *testing.T) {
	twoWay := []domain.Allocation{
		{AreaID: "area-a", Amount: 6_000},
		{AreaID: "area-b", Amount: 4_000},
	}

	tests := []struct {
		name        string
		setup       func(f *fixture)
		movementID  string
		allocations []domain.Allocation
		kind        domain.Kind
		sentinel    error
		message     string
	}{
		{
			name:        "single allocation",
			movementID:  "parent",
			allocations: []domain.Allocation{{AreaID: "area-a", Amount: 10_000}},
			kind:        domain.KindBadRequest,
			sentinel:    domain.ErrTooFewAllocations,
			message:     "At least 2 allocations are required to split a movement",
		},
		{
			name:       "sum below parent amount",
			movementID: "parent",
			allocations: []domain.Allocation{
				{AreaID: "area-a", Amount: 5_000},
				{AreaID: "area-b", Amount: 4_999},
			},
			kind:     domain.KindBadRequest,
			sentinel: domain.ErrSplitSumMismatch,
			message:  "Total allocated amount (99.99) must equal parent amount (100.00)",
		},
		{
			name:       "sum above parent amount",
			movementID: "parent",
			allocations: []domain.Allocation{
				{AreaID: "area-a", Amount: 5_000},
				{AreaID: "area-b", Amount: 5_001},
			},
			kind:     domain.KindBadRequest,
			sentinel: domain.ErrSplitSumMismatch,
		},
		{
			name:       "zero allocation",
			movementID: "parent",
			allocations: []domain.Allocation{
				{AreaID: "area-a", Amount: 10_000},
				{AreaID: "area-b", Amount: 0},
			},
			kind:     domain.KindBadRequest,
			sentinel: domain.ErrInvalidAmount,
		},
		{
			name: "already split",
			setup: func(f *fixture) {
				f.seed("split-parent", 10_000, func(m *domain.Movement) { m.IsSplitParent = true })
			},
			movementID:  "split-parent",
			allocations: twoWay,
			kind:        domain.KindBadRequest,
			sentinel:    domain.ErrAlreadySplit,
			message:     "Movement is already split; use update split instead",
		},
		{
			name: "split child",
			setup: func(f *fixture) {
				f.seed("child", 10_000, func(m *domain.Movement) { m.ParentID = strPtr("parent") })
			},
			movementID:  "child",
			allocations: twoWay,
			kind:        domain.KindBadRequest,
			sentinel:    domain.ErrSplitChild,
			message:     "Cannot split a movement that is itself a split child",
		},
		{
			name: "already distributed",
			setup: func(f *fixture) {
				f.seed("dist-child", 10_000, func(m *domain.Movement) {
					m.ParentID = strPtr("parent")
					m.Type = domain.MovementTypeDistribution
				})
			},
			movementID:  "parent",
			allocations: twoWay,
			kind:        domain.KindBadRequest,
			sentinel:    domain.ErrAlreadyDistributed,
		},
		{
			name:        "missing parent",
			movementID:  "missing",
			allocations: twoWay,
			kind:        domain.KindNotFound,
			sentinel:    domain.ErrMovementNotFound,
		},
		{
			name: "deleted parent",
			setup: func(f *fixture) {
				f.seed("deleted", 10_000, func(m *domain.Movement) {
					at := fixedNow
					m.DeletedAt = &at
				})
			},
			movementID:  "deleted",
			allocations: twoWay,
			kind:        domain.KindNotFound,
			sentinel:    domain.ErrMovementNotFound,
		},
		{
			name:       "unknown area",
			movementID: "parent",
			allocations: []domain.Allocation{
				{AreaID: "area-a", Amount: 6_000},
				{AreaID: "area-x", Amount: 4_000},
			},
			kind:     domain.KindNotFound,
			sentinel: domain.ErrAreaNotFound,
		},
		{
			name:       "deleted area",
			movementID: "parent",
			allocations: []domain.Allocation{
				{AreaID: "area-a", Amount: 6_000},
				{AreaID: "area-gone", Amount: 4_000},
			},
			kind:     domain.KindNotFound,
			sentinel: domain.ErrAreaNotFound,
		},
		{
			name:       "unknown department",
			movementID: "parent",
			allocations: []domain.Allocation{
				{AreaID: "area-a", DepartmentID: strPtr("dept-x"), Amount: 6_000},
				{AreaID: "area-b", Amount: 4_000},
			},
			kind:     domain.KindNotFound,
			sentinel: domain.ErrDepartmentNotFound,
		},
		{
			name:       "department of another area",
			movementID: "parent",
			allocations: []domain.Allocation{
				{AreaID: "area-a", DepartmentID: strPtr("dept-b1"), Amount: 6_000},
				{AreaID: "area-b", Amount: 4_000},
			},
			kind:     domain.KindBadRequest,
			sentinel: domain.ErrDepartmentAreaMismatch,
			message:  "Department dept-b1 does not belong to area area-a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed("parent", 10_000)
			if tt.setup != nil {
				tt.setup(f)
			}
			before := f.store.MovementCount()

			_, err := f.uc.SplitMovement(context.Background(), usecase.SplitMovementInput{
				MovementID:  tt.movementID,
				Allocations: tt.allocations,
				UserID:      "user-1",
			})
			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.KindOf(err))
			assert.ErrorIs(t, err, tt.sentinel)
			if tt.message != "" {
				assert.Equal(t, tt.message, err.Error())
			}

			assert.Equal(t, before, f.store.MovementCount())
			assert.Empty(t, f.store.History())
		})
	}
}

func TestMovementUseCase_SplitMovement_RejectsOversizedAllocations(t *testing.T) {
	tests := []struct {
		name        string
		allocations []domain.Allocation
	}{
		{
			name: "wrapping total",
			allocations: []domain.Allocation{
				{AreaID: "area-a", Amount: math.MaxInt64},
				{AreaID: "area-b", Amount: math.MaxInt64},
				{AreaID: "area-c", Amount: 102},
			},
		},
		{
			name: "allocation above maximum",
			allocations: []domain.Allocation{
				{AreaID: "area-a", Amount: domain.MaxAmount + 1},
				{AreaID: "area-b", Amount: 100 - (domain.MaxAmount + 1)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed("parent", 100)

			_, err := f.uc.SplitMovement(context.Background(), usecase.SplitMovementInput{
				MovementID:  "parent",
				UserID:      "user-1",
				Allocations: tt.allocations,
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
			assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))
			assert.Empty(t, f.store.ChildrenOf("parent"))
		})
	}
}

func TestMovementUseCase_SplitMovement_RejectsOverflowingTotal(t *testing.T) {
	f := newFixture(t)
	f.seed("parent", 100)

	// Every allocation is within range but the list as a whole overflows.
	allocations := make([]domain.Allocation, 0, 1_000_000)
	for len(allocations) < cap(allocations) {
		allocations = append(allocations, domain.Allocation{AreaID: "area-a", Amount: domain.MaxAmount})
	}

	_, err := f.uc.SplitMovement(context.Background(), usecase.SplitMovementInput{
		MovementID:  "parent",
		UserID:      "user-1",
		Allocations: allocations,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))
	assert.Empty(t, f.store.ChildrenOf("parent"))
}

func TestMovementUseCase_SplitMovement_AtomicOnChildFailure(t *testing.T) {
	f := newFixture(t)
	f.seed("parent", 10_000)

	var inserted int
	f.movements.CreateFunc = func(ctx context.Context, tx usecase.Transaction, movement *domain.Movement) error {
		inserted++
		if inserted == 2 {
			return errors.New("connection reset")
		}
		return nil
	}

	_, err := f.uc.SplitMovement(context.Background(), usecase.SplitMovementInput{
		MovementID: "parent",
		UserID:     "user-1",
		Allocations: []domain.Allocation{
			{AreaID: "area-a", Amount: 6_000},
			{AreaID: "area-b", Amount: 4_000},
		},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))

	parent, _ := f.store.Movement("parent")
	assert.False(t, parent.IsSplitParent)
	assert.Empty(t, f.store.ChildrenOf("parent"))
	assert.Empty(t, f.store.History())
	assert.Zero(t, f.txManager.Committed())
}

func TestMovementUseCase_SplitMovement_LockConflict(t *testing.T) {
	f := newFixture(t)
	f.seed("parent", 10_000)

	f.movements.GetByIDForUpdateFunc = func(ctx context.Context, tx usecase.Transaction, id string) (*domain.Movement, error) {
		return nil, domain.Conflict(domain.ErrConcurrentMutation, "Movement %s is being modified concurrently", id)
	}

	_, err := f.uc.SplitMovement(context.Background(), usecase.SplitMovementInput{
		MovementID: "parent",
		UserID:     "user-1",
		Allocations: []domain.Allocation{
			{AreaID: "area-a", Amount: 6_000},
			{AreaID: "area-b", Amount: 4_000},
		},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assert.True(t, domain.KindOf(err).Retryable())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.OperationErrors.WithLabelValues("split", "conflict")))
}

func TestMovementUseCase_UpdateSplitMovement_ReplacesChildren(t *testing.T) {
	f := newFixture(t)
	f.seed("parent", 10_000)
	ctx := context.Background()

	original, err := f.uc.SplitMovement(ctx, usecase.SplitMovementInput{
		MovementID: "parent",
		UserID:     "user-1",
		Allocations: []domain.Allocation{
			{AreaID: "area-a", Amount: 5_000},
			{AreaID: "area-b", Amount: 2_500},
			{AreaID: "area-c", Amount: 2_500},
		},
	})
	require.NoError(t, err)

	updated, err := f.uc.UpdateSplitMovement(ctx, usecase.SplitMovementInput{
		MovementID: "parent",
		UserID:     "user-1",
		Allocations: []domain.Allocation{
			{AreaID: "area-b", Amount: 7_000},
			{AreaID: "area-c", Amount: 3_000},
		},
	})
	require.NoError(t, err)
	require.Len(t, updated.Children, 2)
	assert.True(t, updated.Parent.IsSplitParent)

	children := f.store.ChildrenOf("parent")
	require.Len(t, children, 2)
	assert.Equal(t, int64(10_000), sumAmounts(children))

	surviving := make(map[string]bool, len(children))
	for _, c := range children {
		surviving[c.ID] = true
	}
	for _, old := range original.Children {
		assert.False(t, surviving[old.ID], "original child %s survived the update", old.ID)
	}

	history := f.store.History()
	require.Len(t, history, 2)
	assert.Equal(t, domain.HistoryActionSplit, history[1].Action)
	assert.Equal(t, "Split updated from 3 allocations to 2 allocations", history[1].Comment)
}

func TestMovementUseCase_UpdateSplitMovement_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		movementID  string
		allocations []domain.Allocation
		sentinel    error
	}{
		{
			name:       "not split",
			movementID: "plain",
			allocations: []domain.Allocation{
				{AreaID: "area-a", Amount: 5_000},
				{AreaID: "area-b", Amount: 5_000},
			},
			sentinel: domain.ErrNotSplit,
		},
		{
			name:       "child",
			movementID: "child",
			allocations: []domain.Allocation{
				{AreaID: "area-a", Amount: 50},
				{AreaID: "area-b", Amount: 50},
			},
			sentinel: domain.ErrSplitChild,
		},
		{
			name:       "sum mismatch keeps old children",
			movementID: "split",
			allocations: []domain.Allocation{
				{AreaID: "area-a", Amount: 1},
				{AreaID: "area-b", Amount: 1},
			},
			sentinel: domain.ErrSplitSumMismatch,
		},
		{
			name:        "single allocation",
			movementID:  "split",
			allocations: []domain.Allocation{{AreaID: "area-a", Amount: 10_000}},
			sentinel:    domain.ErrTooFewAllocations,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed("plain", 10_000)
			f.seed("split", 10_000, func(m *domain.Movement) { m.IsSplitParent = true })
			f.seed("child-1", 6_000, func(m *domain.Movement) { m.ParentID = strPtr("split") })
			f.seed("child-2", 4_000, func(m *domain.Movement) { m.ParentID = strPtr("split") })
			f.seed("child", 100, func(m *domain.Movement) { m.ParentID = strPtr("plain") })

			_, err := f.uc.UpdateSplitMovement(context.Background(), usecase.SplitMovementInput{
				MovementID:  tt.movementID,
				Allocations: tt.allocations,
				UserID:      "user-1",
			})
			require.Error(t, err)
			assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))
			assert.ErrorIs(t, err, tt.sentinel)

			assert.Len(t, f.store.ChildrenOf("split"), 2)
		})
	}
}

func TestMovementUseCase_UnsplitMovement_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seed("parent", 10_000)
	ctx := context.Background()

	_, err := f.uc.SplitMovement(ctx, usecase.SplitMovementInput{
		MovementID: "parent",
		UserID:     "user-1",
		Allocations: []domain.Allocation{
			{AreaID: "area-a", Amount: 5_000},
			{AreaID: "area-b", Amount: 2_500},
			{AreaID: "area-c", Amount: 2_500},
		},
	})
	require.NoError(t, err)

	parent, err := f.uc.UnsplitMovement(ctx, usecase.UnsplitMovementInput{MovementID: "parent", UserID: "user-1"})
	require.NoError(t, err)
	assert.False(t, parent.IsSplitParent)

	stored, _ := f.store.Movement("parent")
	assert.False(t, stored.IsSplitParent)
	assert.Empty(t, f.store.ChildrenOf("parent"))
	assert.Equal(t, 1, f.store.MovementCount())

	history := f.store.History()
	require.Len(t, history, 2)
	assert.Equal(t, domain.HistoryActionSplit, history[1].Action)
	assert.Equal(t, "Split removed, 3 children deleted", history[1].Comment)

	// The parent can be split again once unsplit.
	_, err = f.uc.SplitMovement(ctx, usecase.SplitMovementInput{
		MovementID: "parent",
		UserID:     "user-1",
		Allocations: []domain.Allocation{
			{AreaID: "area-a", Amount: 1},
			{AreaID: "area-b", Amount: 9_999},
		},
	})
	require.NoError(t, err)
}

func TestMovementUseCase_UnsplitMovement_NotSplit(t *testing.T) {
	f := newFixture(t)
	f.seed("parent", 10_000)

	_, err := f.uc.UnsplitMovement(context.Background(), usecase.UnsplitMovementInput{MovementID: "parent", UserID: "user-1"})
	require.Error(t, err)
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))
	assert.ErrorIs(t, err, domain.ErrNotSplit)
	assert.Equal(t, "Movement is not split", err.Error())
}

func TestMovementUseCase_SplitMovement_ExactSumProperty(t *testing.T) {
	amounts := []int64{2, 3, 99, 10_000, 123_457, 99_999_999}
	for _, total := range amounts {
		for parts := 2; parts <= 7; parts++ {
			if int64(parts) > total {
				continue
			}
			f := newFixture(t)
			f.seed("parent", total)

			shares, err := domain.Distribute(total, parts)
			require.NoError(t, err)

			areas := []string{"area-a", "area-b", "area-c"}
			allocations := make([]domain.Allocation, parts)
			for i, s := range shares {
				allocations[i] = domain.Allocation{AreaID: areas[i%len(areas)], Amount: s}
			}

			result, err := f.uc.SplitMovement(context.Background(), usecase.SplitMovementInput{
				MovementID:  "parent",
				UserID:      "user-1",
				Allocations: allocations,
			})
			require.NoError(t, err, "total=%d parts=%d", total, parts)
			assert.Equal(t, total, sumAmounts(result.Children))
			assert.Equal(t, total, sumAmounts(f.store.ChildrenOf("parent")))
			assert.True(t, result.Parent.IsSplitParent)
		}
	}
}
