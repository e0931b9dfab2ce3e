package room

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focusroom/go/internal/room/events"
	"github.com/rs/zerolog/log"
)

// Emitter receives every snapshot a room produces. Emit must not block.
type Emitter interface {
	Emit(snapshot events.RoomSnapshot)
}

// Releaser is implemented by emitters that keep per-room state and want to
// hear when a room is released.
type Releaser interface {
	Release(roomID string)
}

// EmitterFunc adapts a function to an Emitter.
type EmitterFunc func(snapshot events.RoomSnapshot)

func (f EmitterFunc) Emit(snapshot events.RoomSnapshot) { f(snapshot) }

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var lastEpoch atomic.Int64

// nextEpoch returns the wall-clock start time of an engine in nanoseconds,
// strictly increasing within the process.
func nextEpoch() int64 {
	for {
		prev := lastEpoch.Load()
		next := time.Now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if lastEpoch.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// Engine is the Room Session Engine. It owns one worker per live room,
// keyed by room id; rooms are created by attach and released once empty.
type Engine struct {
	cfg     Config
	clock   clockwork.Clock
	emitter Emitter
	epoch   int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	rooms  map[string]*roomWorker
	closed bool
}

// NewEngine creates an engine. Zero values in cfg fall back to DefaultConfig.
func NewEngine(cfg Config, emitter Emitter, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.MaxWorkMinutes <= 0 {
		cfg.MaxWorkMinutes = def.MaxWorkMinutes
	}
	if cfg.MaxBreakMinutes <= 0 {
		cfg.MaxBreakMinutes = def.MaxBreakMinutes
	}
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = def.MaxNameLength
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	if emitter == nil {
		emitter = EmitterFunc(func(events.RoomSnapshot) {})
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:     cfg,
		clock:   clockwork.NewRealClock(),
		emitter: emitter,
		epoch:   nextEpoch(),
		ctx:     ctx,
		cancel:  cancel,
		rooms:   make(map[string]*roomWorker),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dispatch validates cmd and applies it to the room. The returned snapshot is
// the room's state after the command, or its unchanged state on rejection.
func (e *Engine) Dispatch(ctx context.Context, roomID string, cmd Command) (events.RoomSnapshot, error) {
	cmd, err := e.normalize(roomID, cmd)
	if err != nil {
		return events.RoomSnapshot{}, err
	}

	for {
		w, err := e.lookup(roomID, cmd.Type == CommandAttach)
		if err != nil {
			return events.RoomSnapshot{}, err
		}

		snap, err := w.submit(ctx, commandRequest{cmd: cmd})
		if errors.Is(err, errRoomReleased) {
			// The worker exited between lookup and submit; look again.
			continue
		}
		return snap, err
	}
}

// Snapshot returns the current state of a live room without mutating it.
func (e *Engine) Snapshot(ctx context.Context, roomID string) (events.RoomSnapshot, error) {
	for {
		w, err := e.lookup(roomID, false)
		if err != nil {
			return events.RoomSnapshot{}, err
		}
		snap, err := w.submit(ctx, commandRequest{query: true})
		if errors.Is(err, errRoomReleased) {
			continue
		}
		return snap, err
	}
}

// ActiveRooms summarizes every live room, ordered by room id.
func (e *Engine) ActiveRooms(ctx context.Context) ([]events.RoomSummary, error) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.rooms))
	for id := range e.rooms {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	sort.Strings(ids)

	summaries := make([]events.RoomSummary, 0, len(ids))
	for _, id := range ids {
		snap, err := e.Snapshot(ctx, id)
		if errors.Is(err, ErrUnknownRoom) {
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, events.RoomSummary{
			RoomID:         snap.RoomID,
			Mode:           snap.Mode,
			UserCount:      snap.Stats.UserCount,
			TimerRemaining: snap.TimerRemaining,
			Seq:            snap.Seq,
		})
	}
	return summaries, nil
}

// Restore recreates live rooms from checkpoints. Rooms that already exist or
// whose checkpoint is malformed are skipped. It returns the number restored.
func (e *Engine) Restore(snapshots []events.RoomSnapshot) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0
	}

	restored := 0
	for _, snap := range snapshots {
		if err := validateCheckpoint(snap); err != nil {
			log.Warn().Err(err).Str("room_id", snap.RoomID).Msg("skipping invalid checkpoint")
			continue
		}
		if _, exists := e.rooms[snap.RoomID]; exists {
			continue
		}
		w := newRoomWorker(snap.RoomID, stateFromSnapshot(snap), e)
		w.restored = true
		e.start(w)
		restored++
	}

	log.Info().Int("restored", restored).Int("checkpoints", len(snapshots)).Msg("rooms restored")
	return restored
}

// Close stops every room worker and waits for them to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	log.Info().Msg("room engine stopped")
}

func (e *Engine) lookup(roomID string, create bool) (*roomWorker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}
	if w, ok := e.rooms[roomID]; ok {
		return w, nil
	}
	if !create {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, roomID)
	}

	w := newRoomWorker(roomID, newState(), e)
	e.start(w)
	log.Info().Str("room_id", roomID).Msg("room created")
	return w, nil
}

// start registers and runs a worker. Callers hold e.mu.
func (e *Engine) start(w *roomWorker) {
	e.rooms[w.id] = w
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		w.run(e.ctx)
	}()
}

// release is called by a worker right before it exits. Emitters are told
// first, while the id still maps to w, so a successor room created by a later
// attach never has its state dropped by the old room's release.
func (e *Engine) release(w *roomWorker) {
	if r, ok := e.emitter.(Releaser); ok {
		r.Release(w.id)
	}

	e.mu.Lock()
	if e.rooms[w.id] == w {
		delete(e.rooms, w.id)
	}
	e.mu.Unlock()
	log.Info().Str("room_id", w.id).Msg("room released")
}

// normalize checks arguments before any room lookup so a bad command can
// neither reach a guard nor create a room.
func (e *Engine) normalize(roomID string, cmd Command) (Command, error) {
	if !roomIDPattern.MatchString(roomID) {
		return cmd, invalidArgument("room id %q must be 1-64 characters of [A-Za-z0-9_-]", roomID)
	}

	switch cmd.Type {
	case CommandStartWork:
		return cmd, checkMinutes(cmd.DurationMinutes, e.cfg.MaxWorkMinutes)
	case CommandStartBreak:
		return cmd, checkMinutes(cmd.DurationMinutes, e.cfg.MaxBreakMinutes)
	case CommandPause, CommandResume, CommandReset, CommandStop, CommandGoToIdle:
		return cmd, nil
	case CommandDetach:
		if cmd.ParticipantID == "" {
			return cmd, invalidArgument("participant id is required")
		}
		return cmd, nil
	case CommandAttach, CommandUpdateName:
		if cmd.ParticipantID == "" {
			return cmd, invalidArgument("participant id is required")
		}
		name, err := e.normalizeName(cmd.Name)
		if err != nil {
			return cmd, err
		}
		cmd.Name = name
		return cmd, nil
	default:
		return cmd, invalidArgument("unknown command %q", cmd.Type)
	}
}

func (e *Engine) normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalidArgument("name must not be empty")
	}
	if n := utf8.RuneCountInString(name); n > e.cfg.MaxNameLength {
		return "", invalidArgument("name is %d characters, limit is %d", n, e.cfg.MaxNameLength)
	}
	return name, nil
}

func checkMinutes(minutes, limit int) error {
	if minutes <= 0 {
		return invalidArgument("duration must be positive, got %d", minutes)
	}
	if minutes > limit {
		return invalidArgument("duration %d exceeds limit of %d minutes", minutes, limit)
	}
	return nil
}

func validateCheckpoint(snap events.RoomSnapshot) error {
	if !roomIDPattern.MatchString(snap.RoomID) {
		return invalidArgument("room id %q", snap.RoomID)
	}
	mode := Mode(snap.Mode)
	switch mode {
	case ModeIdle, ModeWorking, ModePaused, ModeBreak, ModeBreakPaused, ModeStopped:
	default:
		return invalidArgument("mode %q", snap.Mode)
	}
	switch TimerType(snap.TimerType) {
	case TimerNone, TimerWork, TimerBreak:
	default:
		return invalidArgument("timer type %q", snap.TimerType)
	}
	if snap.TimerRemaining < 0 || snap.TimerRemaining > snap.TimerDuration {
		return invalidArgument("remaining %d outside [0, %d]", snap.TimerRemaining, snap.TimerDuration)
	}
	if mode.CountingDown() && snap.TimerRemaining == 0 {
		return invalidArgument("counting down with nothing remaining")
	}
	if mode == ModeStopped && (snap.TimerRemaining != 0 || TimerType(snap.TimerType) == TimerNone) {
		return invalidArgument("stopped room must keep its timer type and have nothing remaining")
	}
	return nil
}
