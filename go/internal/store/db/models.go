package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type RoomCheckpoint struct {
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
