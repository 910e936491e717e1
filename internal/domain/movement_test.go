package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestInternalTransfer(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		destination *string
		want        bool
	}{
		{name: "same account", source: "ba-1", destination: strPtr("ba-1"), want: true},
		{name: "different accounts", source: "ba-1", destination: strPtr("ba-2"), want: false},
		{name: "no destination", source: "ba-1", destination: nil, want: false},
		{name: "empty destination", source: "ba-1", destination: strPtr(""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InternalTransfer(tt.source, tt.destination); got != tt.want {
				t.Errorf("InternalTransfer(%q, %v) = %v, want %v", tt.source, tt.destination, got, tt.want)
			}
		})
	}
}

func TestMovementType_Classification(t *testing.T) {
	if !MovementTypeTransfer.AcceptsDestination() {
		t.Error("transfers must accept a destination")
	}
	for _, typ := range []MovementType{MovementTypeIncome, MovementTypeExpense, MovementTypeDistribution} {
		if typ.AcceptsDestination() {
			t.Errorf("%s must not accept a destination", typ)
		}
	}

	if !MovementTypeExpense.Distributable() {
		t.Error("expenses must be distributable")
	}
	if MovementTypeIncome.Distributable() || MovementTypeTransfer.Distributable() {
		t.Error("only expenses are distributable")
	}

	if MovementType("REFUND").IsValid() {
		t.Error("unknown type must be invalid")
	}
}

func TestMovement_IsAggregable(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		movement Movement
		want     bool
		signed   int64
	}{
		{
			name:     "approved expense",
			movement: Movement{Type: MovementTypeExpense, Status: MovementStatusApproved, Amount: 500},
			want:     true,
			signed:   -500,
		},
		{
			name:     "approved income",
			movement: Movement{Type: MovementTypeIncome, Status: MovementStatusApproved, Amount: 500},
			want:     true,
			signed:   500,
		},
		{
			name:     "split parent is informational",
			movement: Movement{Type: MovementTypeExpense, Status: MovementStatusApproved, Amount: 500, IsSplitParent: true},
			want:     false,
		},
		{
			name:     "internal transfer excluded",
			movement: Movement{Type: MovementTypeTransfer, Status: MovementStatusApproved, Amount: 500, IsInternalTransfer: true},
			want:     false,
		},
		{
			name:     "draft excluded",
			movement: Movement{Type: MovementTypeIncome, Status: MovementStatusDraft, Amount: 500},
			want:     false,
		},
		{
			name:     "cancelled excluded",
			movement: Movement{Type: MovementTypeIncome, Status: MovementStatusCancelled, Amount: 500},
			want:     false,
		},
		{
			name:     "soft-deleted excluded",
			movement: Movement{Type: MovementTypeIncome, Status: MovementStatusApproved, Amount: 500, DeletedAt: &now},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.movement.IsAggregable(); got != tt.want {
				t.Errorf("IsAggregable() = %v, want %v", got, tt.want)
			}
			if got := tt.movement.SignedAmount(); got != tt.signed {
				t.Errorf("SignedAmount() = %d, want %d", got, tt.signed)
			}
		})
	}
}

func TestMovement_SplitChildInheritsParent(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	parent := &Movement{
		ID:                       "mv-1",
		Amount:                   10000,
		Currency:                 "USD",
		SourceBankAccountID:      "ba-1",
		DestinationBankAccountID: strPtr("ba-1"),
		AreaID:                   "area-1",
		Type:                     MovementTypeTransfer,
		Status:                   MovementStatusApproved,
		Description:              "Rent",
		Reference:                strPtr("REF-9"),
		TransactionDate:          date,
		IsInternalTransfer:       true,
	}

	child := parent.SplitChild("mv-2", Allocation{AreaID: "area-2", DepartmentID: strPtr("dep-1"), Amount: 2500}, "user-1", date)

	if child.ParentID == nil || *child.ParentID != "mv-1" {
		t.Fatalf("expected parent id mv-1, got %v", child.ParentID)
	}
	if child.Description != "Split from: Rent" {
		t.Errorf("unexpected default description %q", child.Description)
	}
	if child.AreaID != "area-2" || *child.DepartmentID != "dep-1" || child.Amount != 2500 {
		t.Errorf("child must take allocation classification, got %+v", child)
	}
	if child.SourceBankAccountID != "ba-1" || *child.DestinationBankAccountID != "ba-1" || !child.IsInternalTransfer {
		t.Errorf("child must inherit accounts and internal flag, got %+v", child)
	}
	if child.Type != parent.Type || child.Status != parent.Status || child.Currency != "USD" {
		t.Errorf("child must inherit type, status and currency, got %+v", child)
	}
	if !child.TransactionDate.Equal(date) || *child.Reference != "REF-9" {
		t.Errorf("child must inherit date and reference, got %+v", child)
	}
	if child.IsSplitParent {
		t.Error("child must never be a split parent")
	}

	custom := parent.SplitChild("mv-3", Allocation{AreaID: "area-2", Amount: 1, Description: strPtr("Utilities")}, "user-1", date)
	if custom.Description != "Utilities" {
		t.Errorf("expected allocation description, got %q", custom.Description)
	}
}

func TestMovement_NeedsCategorization(t *testing.T) {
	draft := Movement{Status: MovementStatusDraft}
	if !draft.NeedsCategorization() {
		t.Error("draft without department needs categorization")
	}

	draft.DepartmentID = strPtr("dep-1")
	if draft.NeedsCategorization() {
		t.Error("draft with department is categorized")
	}
}

func TestSumAllocations(t *testing.T) {
	got, err := SumAllocations([]Allocation{{Amount: 5000}, {Amount: 2500}, {Amount: 2500}})
	if err != nil || got != 10000 {
		t.Fatalf("expected 10000, got %d err=%v", got, err)
	}
}

func TestSumAllocationsRejectsOverflow(t *testing.T) {
	_, err := SumAllocations([]Allocation{{Amount: math.MaxInt64}, {Amount: math.MaxInt64}, {Amount: 102}})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected overflow to be rejected, got %v", err)
	}
}
