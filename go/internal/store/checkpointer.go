package store

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focusroom/go/internal/room/events"
	"github.com/rs/zerolog/log"
)

// CheckpointRepository is the storage the Checkpointer writes to.
type CheckpointRepository interface {
	Save(ctx context.Context, snapshot events.RoomSnapshot) error
	Delete(ctx context.Context, roomID string) error
}

// Checkpointer is a room.Emitter that keeps the latest snapshot of every room
// in memory and writes them on a fixed interval, so a countdown costs one
// write per room per interval rather than one per tick.
type Checkpointer struct {
	repo     CheckpointRepository
	clock    clockwork.Clock
	interval time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	pending  map[string]events.RoomSnapshot
	released map[string]bool
}

func NewCheckpointer(repo CheckpointRepository, clock clockwork.Clock, interval time.Duration) *Checkpointer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Checkpointer{
		repo:     repo,
		clock:    clock,
		interval: interval,
		timeout:  10 * time.Second,
		pending:  make(map[string]events.RoomSnapshot),
		released: make(map[string]bool),
	}
}

func (c *Checkpointer) Emit(snapshot events.RoomSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.pending[snapshot.RoomID]; ok && !snapshot.Newer(cur) {
		return
	}
	c.pending[snapshot.RoomID] = snapshot
}

// Release drops any unwritten snapshot and schedules the checkpoint's deletion.
func (c *Checkpointer) Release(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, roomID)
	c.released[roomID] = true
}

// Pending is the number of rooms with an unflushed save or delete.
func (c *Checkpointer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) + len(c.released)
}

// Run flushes on every interval until ctx is cancelled, then flushes once more.
func (c *Checkpointer) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", c.interval).Msg("checkpointer started")
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
			c.Flush(flushCtx)
			cancel()
			log.Info().Msg("checkpointer stopped")
			return
		case <-ticker.Chan():
			flushCtx, cancel := context.WithTimeout(ctx, c.timeout)
			c.Flush(flushCtx)
			cancel()
		}
	}
}

// Flush writes deletions first and then the latest snapshots. Failed writes
// are queued again unless a newer change for the room arrived meanwhile.
func (c *Checkpointer) Flush(ctx context.Context) (saved, deleted int) {
	c.mu.Lock()
	pending, released := c.pending, c.released
	c.pending = make(map[string]events.RoomSnapshot)
	c.released = make(map[string]bool)
	c.mu.Unlock()

	for roomID := range released {
		if err := c.repo.Delete(ctx, roomID); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to delete checkpoint")
			c.requeueRelease(roomID, pending)
			continue
		}
		deleted++
	}

	for roomID, snapshot := range pending {
		if err := c.repo.Save(ctx, snapshot); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Uint64("seq", snapshot.Seq).Msg("failed to save checkpoint")
			c.requeueSnapshot(snapshot)
			continue
		}
		saved++
	}

	if saved > 0 || deleted > 0 {
		log.Debug().Int("saved", saved).Int("deleted", deleted).Msg("checkpoints flushed")
	}
	return saved, deleted
}

func (c *Checkpointer) requeueRelease(roomID string, flushing map[string]events.RoomSnapshot) {
	// A successor room's snapshot overwrites the row anyway
	if _, ok := flushing[roomID]; ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[roomID]; ok {
		return
	}
	c.released[roomID] = true
}

func (c *Checkpointer) requeueSnapshot(snapshot events.RoomSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released[snapshot.RoomID] {
		return
	}
	if _, ok := c.pending[snapshot.RoomID]; ok {
		return
	}
	c.pending[snapshot.RoomID] = snapshot
}
