package ledger_test

import (
	"context"
	"testing"

	"github.com/shi0417/kongfuworld-sub004/ledger"
	"github.com/shi0417/kongfuworld-sub004/model"
	"github.com/shi0417/kongfuworld-sub004/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCredit_RecordsBalances(t *testing.T) {
	db := testutil.SetupTestDB(t)
	u := testutil.SeedUser(t, db, "reader", 10)
	l := ledger.New(db)

	ref := int64(3)
	rec, err := l.Credit(db, ledger.Entry{
		UserID: u.ID, Type: model.KeyTxMission, Amount: 4,
		ReferenceID: &ref, ReferenceType: "mission", Description: "Mission Reward",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.Amount)
	assert.Equal(t, int64(10), rec.BalanceBefore)
	assert.Equal(t, int64(14), rec.BalanceAfter)

	bal, err := l.Balance(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(14), bal)
}

func TestDebit_InsufficientBalance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	u := testutil.SeedUser(t, db, "reader", 2)
	l := ledger.New(db)

	_, err := l.Debit(db, ledger.Entry{UserID: u.ID, Type: model.KeyTxUnlock, Amount: 3})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	bal, _ := l.Balance(context.Background(), u.ID)
	assert.Equal(t, int64(2), bal)

	rec, err := l.Debit(db, ledger.Entry{UserID: u.ID, Type: model.KeyTxUnlock, Amount: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(-2), rec.Amount)
	assert.Equal(t, int64(0), rec.BalanceAfter)
}

func TestCredit_UnknownUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	_, err := ledger.New(db).Credit(db, ledger.Entry{UserID: 999, Type: model.KeyTxAdmin, Amount: 1})
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)
}

func TestCredit_RejectsNonPositive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	u := testutil.SeedUser(t, db, "reader", 0)
	_, err := ledger.New(db).Credit(db, ledger.Entry{UserID: u.ID, Type: model.KeyTxAdmin, Amount: 0})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestCredit_RollsBackWithCaller(t *testing.T) {
	db := testutil.SetupTestDB(t)
	u := testutil.SeedUser(t, db, "reader", 5)
	l := ledger.New(db)

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := l.Credit(tx, ledger.Entry{UserID: u.ID, Type: model.KeyTxCheckin, Amount: 3}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	bal, _ := l.Balance(context.Background(), u.ID)
	assert.Equal(t, int64(5), bal)
	_, total, err := l.History(context.Background(), u.ID, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestHistory_NewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	u := testutil.SeedUser(t, db, "reader", 0)
	l := ledger.New(db)
	for i := int64(1); i <= 3; i++ {
		_, err := l.Credit(db, ledger.Entry{UserID: u.ID, Type: model.KeyTxCheckin, Amount: i})
		require.NoError(t, err)
	}

	txs, total, err := l.History(context.Background(), u.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(3), txs[0].Amount)
	assert.Equal(t, int64(2), txs[1].Amount)
}
