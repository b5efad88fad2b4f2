package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	dbh, err := Open(ctx, DriverSQLite, dsn)
	require.NoError(t, err)
	defer dbh.Close()

	for _, table := range []string{"users", "group_members", "audits", "evaluation_items", "event_log"} {
		var n int
		err := dbh.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type='table' AND name=$1`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}

	// schema creation is repeatable
	require.NoError(t, EnsureSchema(ctx, dbh, DriverSQLite))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Driver("oracle"), "")
	assert.ErrorContains(t, err, "unsupported driver")
}
