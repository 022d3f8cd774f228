// Package ledger moves keys in and out of a user's balance and keeps the
// append-only transaction history that explains every change.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shi0417/kongfuworld-sub004/model"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound        = errors.New("ledger: user not found")
	ErrInsufficientBalance = errors.New("ledger: insufficient key balance")
	ErrInvalidAmount       = errors.New("ledger: amount must be positive")
)

// Entry describes one balance change.
type Entry struct {
	UserID        int64
	Type          string
	Amount        int64 // always positive; Debit negates it
	ReferenceID   *int64
	ReferenceType string
	Description   string
}

// Ledger writes key transactions. Credit and Debit take the caller's
// transaction so the balance change commits or rolls back with the business
// write that caused it.
type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Credit adds e.Amount keys to the user's balance.
func (l *Ledger) Credit(tx *gorm.DB, e Entry) (*model.KeyTransaction, error) {
	if e.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return l.apply(tx, e, e.Amount)
}

// Debit removes e.Amount keys; the balance never goes negative.
func (l *Ledger) Debit(tx *gorm.DB, e Entry) (*model.KeyTransaction, error) {
	if e.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return l.apply(tx, e, -e.Amount)
}

func (l *Ledger) apply(tx *gorm.DB, e Entry, delta int64) (*model.KeyTransaction, error) {
	// Guarded increment: the row changes only when the result stays >= 0.
	res := tx.Model(&model.User{}).
		Where("id = ? AND points + ? >= 0", e.UserID, delta).
		Update("points", gorm.Expr("points + ?", delta))
	if res.Error != nil {
		return nil, fmt.Errorf("ledger: update balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := tx.Model(&model.User{}).Where("id = ?", e.UserID).Count(&n).Error; err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrUserNotFound
		}
		return nil, ErrInsufficientBalance
	}

	var u model.User
	if err := tx.Select("id", "points").First(&u, e.UserID).Error; err != nil {
		return nil, err
	}
	after := u.Points

	rec := &model.KeyTransaction{
		UserID:          e.UserID,
		TransactionType: e.Type,
		Amount:          delta,
		BalanceBefore:   after - delta,
		BalanceAfter:    after,
		ReferenceID:     e.ReferenceID,
		ReferenceType:   e.ReferenceType,
		Description:     e.Description,
	}
	if err := tx.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("ledger: record transaction: %w", err)
	}
	return rec, nil
}

// Balance returns the user's current key balance.
func (l *Ledger) Balance(ctx context.Context, userID int64) (int64, error) {
	var u model.User
	err := l.db.WithContext(ctx).Select("id", "points").First(&u, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUserNotFound
	}
	return u.Points, err
}

// History lists a user's transactions, newest first.
func (l *Ledger) History(ctx context.Context, userID int64, limit, offset int) ([]model.KeyTransaction, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	q := l.db.WithContext(ctx).Model(&model.KeyTransaction{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var txs []model.KeyTransaction
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&txs).Error
	return txs, total, err
}
