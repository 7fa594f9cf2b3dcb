package mysql

import (
	"context"
	"errors"
	"time"

	loanDomain "trustline-credit/internal/domain/loan"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// loanRow is the relational layout of a loan record. StorageKey carries the same
// "loan:<id>" key the key-value backend uses.
type loanRow struct {
	ID               uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	StorageKey       string    `gorm:"column:storage_key;size:48;not null;uniqueIndex"`
	LoanID           string    `gorm:"column:loan_id;type:char(36);not null;uniqueIndex"`
	LenderAddress    string    `gorm:"column:lender_address;size:64"`
	BorrowerAddress  string    `gorm:"column:borrower_address;size:64"`
	CurrencyCode     string    `gorm:"column:currency_code;size:40;not null"`
	CreditAmount     string    `gorm:"column:credit_amount;size:64;not null"`
	CollateralAmount string    `gorm:"column:collateral_amount;size:32;not null"`
	RepayAmount      string    `gorm:"column:repay_amount;size:32;not null"`
	DueAt            int64     `gorm:"column:due_at;not null"`
	CancelAt         int64     `gorm:"column:cancel_at;not null"`
	EscrowSequence   uint32    `gorm:"column:escrow_sequence"`
	EscrowTxID       string    `gorm:"column:escrow_tx_id;size:64"`
	CreditTxID       string    `gorm:"column:credit_tx_id;size:64"`
	RepayTxID        string    `gorm:"column:repay_tx_id;size:64"`
	ClaimTxID        string    `gorm:"column:claim_tx_id;size:64"`
	CancelTxID       string    `gorm:"column:cancel_tx_id;size:64"`
	Status           string    `gorm:"column:status;size:32;not null;index"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (loanRow) TableName() string { return "loans" }

func toRow(l *loanDomain.Loan) loanRow {
	row := loanRow{
		StorageKey:       loanDomain.Key(l.ID),
		LoanID:           l.ID,
		LenderAddress:    l.LenderAddress,
		BorrowerAddress:  l.BorrowerAddress,
		CurrencyCode:     l.CurrencyCode,
		CreditAmount:     l.CreditAmount,
		CollateralAmount: l.CollateralAmount,
		RepayAmount:      l.RepayAmount,
		DueAt:            l.DueAt,
		CancelAt:         l.CancelAt,
		CreditTxID:       l.CreditTxID,
		RepayTxID:        l.RepayTxID,
		ClaimTxID:        l.ClaimTxID,
		CancelTxID:       l.CancelTxID,
		Status:           string(l.Status),
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
	if l.HasEscrow() {
		row.EscrowSequence = l.EscrowRef.Sequence
		row.EscrowTxID = l.EscrowRef.TxID
	}
	return row
}

func (row loanRow) toDomain() *loanDomain.Loan {
	l := loanDomain.Loan{
		ID:               row.LoanID,
		LenderAddress:    row.LenderAddress,
		BorrowerAddress:  row.BorrowerAddress,
		CurrencyCode:     row.CurrencyCode,
		CreditAmount:     row.CreditAmount,
		CollateralAmount: row.CollateralAmount,
		RepayAmount:      row.RepayAmount,
		DueAt:            row.DueAt,
		CancelAt:         row.CancelAt,
		CreditTxID:       row.CreditTxID,
		RepayTxID:        row.RepayTxID,
		ClaimTxID:        row.ClaimTxID,
		CancelTxID:       row.CancelTxID,
		Status:           loanDomain.Status(row.Status),
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}
	if row.EscrowTxID != "" {
		l = l.WithEscrow(row.EscrowSequence, row.EscrowTxID)
	}
	return &l
}

type LoanRepository struct{ db *gorm.DB }

func NewLoanRepository(db *gorm.DB) *LoanRepository { return &LoanRepository{db: db} }

func (r *LoanRepository) Create(ctx context.Context, l *loanDomain.Loan) error {
	row := toRow(l)
	return r.db.WithContext(ctx).Create(&row).Error
}

// Save replaces every mutable column of the stored record.
func (r *LoanRepository) Save(ctx context.Context, l *loanDomain.Loan) error {
	row := toRow(l)
	res := r.db.WithContext(ctx).
		Model(&loanRow{}).
		Where("loan_id = ?", l.ID).
		Select("*").
		Omit("id", "storage_key", "loan_id", "created_at").
		Updates(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return loanDomain.ErrNotFound
	}
	return nil
}

func (r *LoanRepository) GetByLoanID(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	return r.first(r.db.WithContext(ctx), loanID)
}

// GetByLoanIDForUpdate takes a row lock (SELECT ... FOR UPDATE). SQLite has no row
// locks; its dialector drops the clause and the write lock of the tx applies.
func (r *LoanRepository) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), loanID)
}

func (r *LoanRepository) first(q *gorm.DB, loanID string) (*loanDomain.Loan, error) {
	var row loanRow
	if err := q.Where("loan_id = ?", loanID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loanDomain.ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *LoanRepository) ListByStatus(ctx context.Context, statuses ...loanDomain.Status) ([]loanDomain.Loan, error) {
	q := r.db.WithContext(ctx).Order("created_at ASC, id ASC")
	if len(statuses) > 0 {
		names := make([]string, 0, len(statuses))
		for _, s := range statuses {
			names = append(names, string(s))
		}
		q = q.Where("status IN ?", names)
	}
	var rows []loanRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]loanDomain.Loan, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toDomain())
	}
	return out, nil
}
