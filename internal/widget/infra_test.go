package widget

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProfiles(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProfiles()

	u, err := store.Load(ctx, "agent-1", "visitor-1")
	require.NoError(t, err)
	assert.Nil(t, u)

	require.NoError(t, store.Save(ctx, "agent-1", "visitor-1", KnownUser{FirstName: "Ann", ConversationID: "conv-1"}))

	u, err = store.Load(ctx, "agent-1", "visitor-1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "conv-1", u.ConversationID)

	other, err := store.Load(ctx, "agent-2", "visitor-1")
	require.NoError(t, err)
	assert.Nil(t, other)
}

// Runs against a real Postgres when WIDGET_TEST_DATABASE_URL is set.
func TestProfileRepo_Postgres(t *testing.T) {
	dsn := os.Getenv("WIDGET_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("WIDGET_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, EnsureSchema(ctx, db))

	agentID := "agent-" + t.Name()
	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, `DELETE FROM known_users WHERE agent_id = $1`, agentID)
	})

	repo := NewProfileRepo(db)
	u, err := repo.Load(ctx, agentID, "visitor-1")
	require.NoError(t, err)
	assert.Nil(t, u)

	require.NoError(t, repo.Save(ctx, agentID, "visitor-1", KnownUser{FirstName: "Ann", LeadID: "lead-1"}))
	require.NoError(t, repo.Save(ctx, agentID, "visitor-1", KnownUser{FirstName: "Ann", LeadID: "lead-1", ConversationID: "conv-3"}))

	u, err = repo.Load(ctx, agentID, "visitor-1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, KnownUser{FirstName: "Ann", LeadID: "lead-1", ConversationID: "conv-3"}, *u)
}
