package syncx

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-audit/internal/db"
)

func TestNewEvent(t *testing.T) {
	e, err := NewEvent(TypeExamStarted, "exam-1", "pat", map[string]any{"at": "09:00"})
	require.NoError(t, err)
	assert.Equal(t, `{"at":"09:00"}`, e.DataJSON)
	assert.Equal(t, "local", e.SiteID)

	_, err = NewEvent(TypeItemSaved, "i1", "ana", func() {})
	assert.Error(t, err)
}

func TestEventRepo_AppendSince(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := db.Open(ctx, db.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	repo := NewEventRepo(sqlDB, "site-a")
	for i := 0; i < 3; i++ {
		e, err := NewEvent(TypeItemTransitioned, fmt.Sprintf("i%d", i), "eva", map[string]int{"n": i})
		require.NoError(t, err)
		require.NoError(t, repo.Append(ctx, e))
	}

	all, err := repo.Since(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "site-a", all[0].SiteID)
	assert.Equal(t, "i0", all[0].Key)
	assert.Less(t, all[0].Seq, all[1].Seq)

	rest, err := repo.Since(ctx, all[0].Seq, 1)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "i1", rest[0].Key)
}

func TestMemoryLog(t *testing.T) {
	m := NewMemoryLog()
	ctx := context.Background()
	require.NoError(t, m.Append(ctx, Event{Type: TypeExamStarted, Key: "x"}))
	require.NoError(t, m.Append(ctx, Event{Type: TypeItemSaved, Key: "y"}))

	assert.Len(t, m.Events(), 2)
	got := m.OfType(TypeItemSaved)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].Seq)
}
