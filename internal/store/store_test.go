package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Explicitly check for Docker availability and fail hard if missing
	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Fatalf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("roverlink_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	// Get Connection String
	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Test Scenarios ---

	id, err := s.CreateMission(ctx, "10.0.0.7:51234", "command")
	if err != nil {
		t.Fatalf("CreateMission failed: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("Expected a mission ID")
	}

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	events := []Event{
		{At: base, From: "search", To: "focus", Maneuver: "halt"},
		{At: base.Add(2 * time.Second), From: "focus", To: "identify", Maneuver: "halt"},
		{At: base.Add(3 * time.Second), From: "identify", To: "finish", Maneuver: "turn-90-left"},
	}
	for _, e := range events {
		if err := s.RecordTransition(ctx, id, e); err != nil {
			t.Fatalf("RecordTransition failed: %v", err)
		}
	}
	if err := s.EndMission(ctx, id, 120); err != nil {
		t.Fatalf("EndMission failed: %v", err)
	}
	if err := s.EndMission(ctx, uuid.New(), 1); err == nil {
		t.Error("Expected EndMission to fail for an unknown mission")
	}

	missions, err := s.ListMissions(ctx)
	if err != nil {
		t.Fatalf("ListMissions failed: %v", err)
	}
	if len(missions) != 1 {
		t.Fatalf("Expected 1 mission, got %d", len(missions))
	}
	m := missions[0]
	if m.ID != id || m.Frames != 120 || m.Transitions != 3 || m.Maneuvers != 1 {
		t.Errorf("Unexpected mission summary: %+v", m)
	}
	if m.EndedAt == nil {
		t.Error("Expected the mission to be ended")
	}

	got, err := s.MissionEvents(ctx, id)
	if err != nil {
		t.Fatalf("MissionEvents failed: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("Expected %d events, got %d", len(events), len(got))
	}
	for i := range events {
		if !got[i].At.Equal(events[i].At) || got[i].To != events[i].To || got[i].Maneuver != events[i].Maneuver {
			t.Errorf("Event %d: got %+v, want %+v", i, got[i], events[i])
		}
	}

	found, err := s.FindMission(ctx, id.String()[:8])
	if err != nil || found != id {
		t.Errorf("FindMission by prefix: got %v, %v", found, err)
	}
	none, err := s.FindMission(ctx, "zzzz")
	if err != nil || none != uuid.Nil {
		t.Errorf("Expected no match, got %v, %v", none, err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListMissions(ctx); err == nil {
		t.Error("Expected ListMissions to fail after Reset dropped the tables")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
