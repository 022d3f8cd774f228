package db

import (
	"errors"
	"testing"

	"github.com/shi0417/kongfuworld-sub004/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestOpen_UnknownMode(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Mode: "embedded_xml"})
	assert.Error(t, err)
}

func TestOpen_SQLiteMemory(t *testing.T) {
	gdb, err := Open(config.DatabaseConfig{Mode: ModeSQLite, SQLitePath: "file:adapter_test?mode=memory&cache=shared"})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	var one int
	require.NoError(t, gdb.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: users.username")))
	assert.True(t, IsUniqueViolation(errors.New("Error 1062: Duplicate entry 'x' for key 'uniq'")))
	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
}
