package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store manages the PostgreSQL connection holding the mission log.
type Store struct {
	conn *pgx.Conn
}

// Mission is one base session with a rover.
type Mission struct {
	ID          uuid.UUID
	Peer        string
	Profile     string
	StartedAt   time.Time
	EndedAt     *time.Time
	Frames      int
	Transitions int
	Maneuvers   int // symbol-driven maneuvers (identify -> finish)
}

// Event is one navigation state change.
type Event struct {
	At       time.Time
	From     string
	To       string
	Maneuver string
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the mission tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS missions (
			id UUID PRIMARY KEY,
			peer TEXT NOT NULL,
			profile TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ended_at TIMESTAMPTZ,
			frames INT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS nav_events (
			id BIGSERIAL PRIMARY KEY,
			mission_id UUID NOT NULL REFERENCES missions(id) ON DELETE CASCADE,
			at TIMESTAMPTZ NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			maneuver TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS nav_events_mission_id_idx ON nav_events (mission_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// CreateMission opens a new mission and returns its ID.
func (s *Store) CreateMission(ctx context.Context, peer, profile string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO missions (id, peer, profile, started_at)
		VALUES ($1, $2, $3, NOW())
	`, id.String(), peer, profile)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// EndMission stamps the end time and the number of frames handled.
func (s *Store) EndMission(ctx context.Context, id uuid.UUID, frames int) error {
	tag, err := s.conn.Exec(ctx, "UPDATE missions SET ended_at = NOW(), frames = $2 WHERE id = $1", id.String(), frames)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mission %s not found", id)
	}
	return nil
}

// RecordTransition appends a navigation event to a mission.
func (s *Store) RecordTransition(ctx context.Context, id uuid.UUID, e Event) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO nav_events (mission_id, at, from_state, to_state, maneuver)
		VALUES ($1, $2, $3, $4, $5)
	`, id.String(), e.At, e.From, e.To, e.Maneuver)
	return err
}

// ListMissions returns every mission, newest first, with its event counts.
func (s *Store) ListMissions(ctx context.Context) ([]Mission, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT m.id::text, m.peer, m.profile, m.started_at, m.ended_at, m.frames,
			COUNT(e.id),
			COUNT(e.id) FILTER (WHERE e.from_state = 'identify')
		FROM missions m
		LEFT JOIN nav_events e ON e.mission_id = m.id
		GROUP BY m.id
		ORDER BY m.started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missions []Mission
	for rows.Next() {
		var m Mission
		var id string
		if err := rows.Scan(&id, &m.Peer, &m.Profile, &m.StartedAt, &m.EndedAt, &m.Frames, &m.Transitions, &m.Maneuvers); err != nil {
			return nil, err
		}
		if m.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		missions = append(missions, m)
	}
	return missions, rows.Err()
}

// MissionEvents returns the events of one mission in order.
func (s *Store) MissionEvents(ctx context.Context, id uuid.UUID) ([]Event, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT at, from_state, to_state, maneuver FROM nav_events
		WHERE mission_id = $1 ORDER BY at, id
	`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.At, &e.From, &e.To, &e.Maneuver); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// FindMission resolves a full or prefix mission ID. Returns uuid.Nil if nothing matches.
func (s *Store) FindMission(ctx context.Context, prefix string) (uuid.UUID, error) {
	var id string
	err := s.conn.QueryRow(ctx, "SELECT id::text FROM missions WHERE id::text LIKE $1 || '%' ORDER BY started_at DESC LIMIT 1", prefix).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil // No match found
	}
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(id)
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS nav_events CASCADE;
		DROP TABLE IF EXISTS missions CASCADE;
	`)
	return err
}
