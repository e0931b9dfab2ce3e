package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const deleteCheckpoint = `-- name: DeleteCheckpoint :exec
DELETE FROM room_checkpoints WHERE room_id = $1
`

func (q *Queries) DeleteCheckpoint(ctx context.Context, roomID string) error {
	_, err := q.db.ExecContext(ctx, deleteCheckpoint, roomID)
	return err
}

const deleteCheckpointsBefore = `-- name: DeleteCheckpointsBefore :execrows
DELETE FROM room_checkpoints WHERE updated_at < $1
`

func (q *Queries) DeleteCheckpointsBefore(ctx context.Context, updatedAt time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteCheckpointsBefore, updatedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listCheckpointsSince = `-- name: ListCheckpointsSince :many
SELECT room_id, seq, mode, timer_type, timer_duration, timer_remaining,
       work_sessions, total_work_time, instance_id, updated_at
FROM room_checkpoints
WHERE updated_at >= $1
ORDER BY room_id
`

func (q *Queries) ListCheckpointsSince(ctx context.Context, updatedAt time.Time) ([]RoomCheckpoint, error) {
	rows, err := q.db.QueryContext(ctx, listCheckpointsSince, updatedAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RoomCheckpoint
	for rows.Next() {
		var i RoomCheckpoint
		if err := rows.Scan(
			&i.RoomID,
			&i.Seq,
			&i.Mode,
			&i.TimerType,
			&i.TimerDuration,
			&i.TimerRemaining,
			&i.WorkSessions,
			&i.TotalWorkTime,
			&i.InstanceID,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertCheckpoint = `-- name: UpsertCheckpoint :exec
INSERT INTO room_checkpoints (
    room_id, seq, mode, timer_type, timer_duration, timer_remaining,
    work_sessions, total_work_time, instance_id, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
)
ON CONFLICT (room_id) DO UPDATE SET
    seq             = EXCLUDED.seq,
    mode            = EXCLUDED.mode,
    timer_type      = EXCLUDED.timer_type,
    timer_duration  = EXCLUDED.timer_duration,
    timer_remaining = EXCLUDED.timer_remaining,
    work_sessions   = EXCLUDED.work_sessions,
    total_work_time = EXCLUDED.total_work_time,
    instance_id     = EXCLUDED.instance_id,
    updated_at      = EXCLUDED.updated_at
`

type UpsertCheckpointParams struct {
	RoomID         string                `json:"room_id"`
	Seq            int64                 `json:"seq"`
	Mode           string                `json:"mode"`
	TimerType      string                `json:"timer_type"`
	TimerDuration  int32                 `json:"timer_duration"`
	TimerRemaining int32                 `json:"timer_remaining"`
	WorkSessions   pqtype.NullRawMessage `json:"work_sessions"`
	TotalWorkTime  int32                 `json:"total_work_time"`
	InstanceID     uuid.UUID             `json:"instance_id"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func (q *Queries) UpsertCheckpoint(ctx context.Context, arg UpsertCheckpointParams) error {
	_, err := q.db.ExecContext(ctx, upsertCheckpoint,
		arg.RoomID,
		arg.Seq,
		arg.Mode,
		arg.TimerType,
		arg.TimerDuration,
		arg.TimerRemaining,
		arg.WorkSessions,
		arg.TotalWorkTime,
		arg.InstanceID,
		arg.UpdatedAt,
	)
	return err
}
