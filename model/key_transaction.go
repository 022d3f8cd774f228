package model

import "time"

const (
	KeyTxCheckin = "checkin"
	KeyTxMission = "mission"
	KeyTxUnlock  = "unlock"
	KeyTxAdmin   = "admin"
)

// KeyTransaction is an append-only ledger entry for the key balance (users.points).
type KeyTransaction struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64     `gorm:"index:idx_keytx_user;not null" json:"user_id"`
	TransactionType string    `gorm:"size:32;not null" json:"transaction_type"`
	Amount          int64     `gorm:"not null" json:"amount"`
	BalanceBefore   int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter    int64     `gorm:"not null" json:"balance_after"`
	ReferenceID     *int64    `json:"reference_id"`
	ReferenceType   string    `gorm:"size:32" json:"reference_type"`
	Description     string    `gorm:"size:255" json:"description"`
	CreatedAt       time.Time `gorm:"index:idx_keytx_created;autoCreateTime:milli" json:"created_at"`
}
