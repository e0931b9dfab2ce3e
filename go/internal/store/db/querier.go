package db

import (
	"context"
	"time"
)

type Querier interface {
	DeleteCheckpoint(ctx context.Context, roomID string) error
	DeleteCheckpointsBefore(ctx context.Context, updatedAt time.Time) (int64, error)
	ListCheckpointsSince(ctx context.Context, updatedAt time.Time) ([]RoomCheckpoint, error)
	UpsertCheckpoint(ctx context.Context, arg UpsertCheckpointParams) error
}

var _ Querier = (*Queries)(nil)
