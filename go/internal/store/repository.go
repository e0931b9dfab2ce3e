package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/focusroom/go/internal/room/events"
	"github.com/mcdev12/focusroom/go/internal/store/db"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

//go:embed schema.sql
var schema string

// Migrate creates the checkpoint table if it does not exist.
func Migrate(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply checkpoint schema: %w", err)
	}
	return nil
}

// Repository stores the latest snapshot of each live room, owned by one engine instance.
type Repository struct {
	queries    db.Querier
	instanceID uuid.UUID
}

func NewRepository(querier db.Querier, instanceID uuid.UUID) *Repository {
	return &Repository{
		queries:    querier,
		instanceID: instanceID,
	}
}

// Save upserts the checkpoint of a room. Participants are not stored.
func (r *Repository) Save(ctx context.Context, snapshot events.RoomSnapshot) error {
	sessions, err := json.Marshal(snapshot.WorkSessions)
	if err != nil {
		return fmt.Errorf("failed to marshal work sessions: %w", err)
	}

	err = r.queries.UpsertCheckpoint(ctx, db.UpsertCheckpointParams{
		RoomID:         snapshot.RoomID,
		Seq:            int64(snapshot.Seq),
		Mode:           snapshot.Mode,
		TimerType:      snapshot.TimerType,
		TimerDuration:  int32(snapshot.TimerDuration),
		TimerRemaining: int32(snapshot.TimerRemaining),
		WorkSessions:   pqtype.NullRawMessage{RawMessage: sessions, Valid: len(snapshot.WorkSessions) > 0},
		TotalWorkTime:  int32(snapshot.Stats.TotalWorkTime),
		InstanceID:     r.instanceID,
		UpdatedAt:      snapshot.ServerTime,
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for room %s: %w", snapshot.RoomID, err)
	}
	return nil
}

// Delete removes a room's checkpoint.
func (r *Repository) Delete(ctx context.Context, roomID string) error {
	if err := r.queries.DeleteCheckpoint(ctx, roomID); err != nil {
		return fmt.Errorf("failed to delete checkpoint for room %s: %w", roomID, err)
	}
	return nil
}

// LoadSince returns the checkpoints written at or after since as snapshots.
// Unreadable rows are skipped.
func (r *Repository) LoadSince(ctx context.Context, since time.Time) ([]events.RoomSnapshot, error) {
	rows, err := r.queries.ListCheckpointsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	snapshots := make([]events.RoomSnapshot, 0, len(rows))
	for _, row := range rows {
		snapshot, err := checkpointToSnapshot(row)
		if err != nil {
			log.Warn().Err(err).Str("room_id", row.RoomID).Msg("skipping unreadable checkpoint")
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// PurgeBefore deletes checkpoints older than before and reports how many went.
func (r *Repository) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.queries.DeleteCheckpointsBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge checkpoints: %w", err)
	}
	return n, nil
}

func checkpointToSnapshot(row db.RoomCheckpoint) (events.RoomSnapshot, error) {
	var sessions []events.WorkSession
	if row.WorkSessions.Valid {
		if err := json.Unmarshal(row.WorkSessions.RawMessage, &sessions); err != nil {
			return events.RoomSnapshot{}, fmt.Errorf("failed to decode work sessions of room %s: %w", row.RoomID, err)
		}
	}

	total := 0
	for _, s := range sessions {
		total += s.Duration
	}
	if total != int(row.TotalWorkTime) {
		return events.RoomSnapshot{}, fmt.Errorf("checkpoint of room %s: sessions sum to %d, total is %d", row.RoomID, total, row.TotalWorkTime)
	}

	return events.RoomSnapshot{
		RoomID:         row.RoomID,
		Seq:            uint64(row.Seq),
		Mode:           row.Mode,
		TimerType:      row.TimerType,
		TimerDuration:  int(row.TimerDuration),
		TimerRemaining: int(row.TimerRemaining),
		WorkSessions:   sessions,
		Stats:          events.RoomStats{TotalWorkTime: total},
		ServerTime:     row.UpdatedAt,
	}, nil
}
