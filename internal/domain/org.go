package domain

import "time"

// BankAccount is a real bank account movements are booked against.
type BankAccount struct {
	ID        string
	Name      string
	Currency  string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Area is an organizational unit scoped to one bank account. It is the unit
// of user access control.
type Area struct {
	ID            string
	Name          string
	Code          string
	BankAccountID string
	Currency      string
	CreatedAt     time.Time
	DeletedAt     *time.Time
}

// Department belongs to exactly one area; its code is unique within it.
type Department struct {
	ID        string
	Name      string
	Code      string
	AreaID    string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// BelongsTo reports whether the department is part of areaID.
func (d *Department) BelongsTo(areaID string) bool {
	return d.AreaID == areaID
}
