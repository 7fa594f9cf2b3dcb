package transition

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("transition not found")

// Transition is one applied lifecycle change of a loan, kept for audit.
type Transition struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	TransitionID string    `gorm:"column:transition_id;type:char(32);not null;uniqueIndex" json:"transitionId"`
	LoanID       string    `gorm:"column:loan_id;type:char(36);not null;index" json:"loanId"`
	Trigger      string    `gorm:"column:trigger_name;size:32;not null" json:"trigger"`
	FromStatus   string    `gorm:"column:from_status;size:32;not null" json:"from"`
	ToStatus     string    `gorm:"column:to_status;size:32;not null" json:"to"`
	TxID         string    `gorm:"column:tx_id;size:64" json:"txId,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (Transition) TableName() string { return "loan_transitions" }
