package widget

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

type profileRepo struct {
	db *sql.DB
}

// NewProfileRepo stores known users in Postgres, table known_users.
func NewProfileRepo(db *sql.DB) UserProfileStore {
	return &profileRepo{db: db}
}

const knownUsersSchema = `
CREATE TABLE IF NOT EXISTS known_users (
	agent_id        TEXT NOT NULL,
	visitor_id      TEXT NOT NULL,
	first_name      TEXT NOT NULL DEFAULT '',
	lead_id         TEXT NOT NULL DEFAULT '',
	conversation_id TEXT NOT NULL DEFAULT '',
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (agent_id, visitor_id)
)`

// EnsureSchema creates the known_users table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, knownUsersSchema)
	return err
}

func (r *profileRepo) Load(ctx context.Context, agentID, visitorID string) (*KnownUser, error) {
	var u KnownUser
	err := r.db.QueryRowContext(ctx, `
		SELECT first_name, lead_id, conversation_id
		FROM known_users
		WHERE agent_id = $1 AND visitor_id = $2
	`, agentID, visitorID).Scan(&u.FirstName, &u.LeadID, &u.ConversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *profileRepo) Save(ctx context.Context, agentID, visitorID string, u KnownUser) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO known_users (agent_id, visitor_id, first_name, lead_id, conversation_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (agent_id, visitor_id) DO UPDATE
		SET first_name = EXCLUDED.first_name,
			lead_id = EXCLUDED.lead_id,
			conversation_id = EXCLUDED.conversation_id,
			updated_at = now()
	`,
		agentID,
		visitorID,
		u.FirstName,
		u.LeadID,
		u.ConversationID,
	)
	return err
}

type memoryProfiles struct {
	mu    sync.Mutex
	users map[string]KnownUser
}

// NewMemoryProfiles keeps known users in process memory.
func NewMemoryProfiles() UserProfileStore {
	return &memoryProfiles{users: make(map[string]KnownUser)}
}

func (m *memoryProfiles) Load(_ context.Context, agentID, visitorID string) (*KnownUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[agentID+"/"+visitorID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *memoryProfiles) Save(_ context.Context, agentID, visitorID string, u KnownUser) error {
	m.mu.Lock()
	m.users[agentID+"/"+visitorID] = u
	m.mu.Unlock()
	return nil
}
