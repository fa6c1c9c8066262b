package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsDuplicateKey(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	require.True(t, IsDuplicateKey(dup))
	require.True(t, IsDuplicateKey(fmt.Errorf("insert entry: %w", dup)))
	require.True(t, IsDuplicateKey(gorm.ErrDuplicatedKey))

	require.False(t, IsDuplicateKey(&mysql.MySQLError{Number: 1213}))
	require.False(t, IsDuplicateKey(errors.New("boom")))
	require.False(t, IsDuplicateKey(nil))
}

func TestHealthCheckWithoutDB(t *testing.T) {
	require.Error(t, HealthCheck(t.Context(), nil))
	require.Contains(t, GetStats(nil), "error")
	require.NoError(t, Close(nil))
}
