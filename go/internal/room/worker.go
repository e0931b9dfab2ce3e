package room

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focusroom/go/internal/room/events"
	"github.com/rs/zerolog/log"
)

// tickInterval is the countdown period; every tick removes one second.
const tickInterval = time.Second

// errRoomReleased is returned by submit when the worker has already exited.
var errRoomReleased = errors.New("room released")

type commandRequest struct {
	cmd   Command
	query bool
	reply chan commandResult
}

type commandResult struct {
	snapshot events.RoomSnapshot
	err      error
}

// roomWorker owns all mutation of one room. Commands, ticks and the release
// timer are consumed from a single select loop so they never interleave.
type roomWorker struct {
	id       string
	state    *State
	cfg      Config
	clock    clockwork.Clock
	emitter  Emitter
	release  func(*roomWorker)
	epoch    int64
	restored bool

	cmdCh chan commandRequest
	done  chan struct{}

	ticker  clockwork.Ticker
	grace   clockwork.Timer
	lastCue events.Cue
}

func newRoomWorker(id string, state *State, e *Engine) *roomWorker {
	return &roomWorker{
		id:      id,
		state:   state,
		cfg:     e.cfg,
		clock:   e.clock,
		emitter: e.emitter,
		release: e.release,
		epoch:   e.epoch,
		cmdCh:   make(chan commandRequest),
		done:    make(chan struct{}),
	}
}

// submit hands a request to the worker and waits for its reply.
func (w *roomWorker) submit(ctx context.Context, req commandRequest) (events.RoomSnapshot, error) {
	req.reply = make(chan commandResult, 1)

	select {
	case w.cmdCh <- req:
	case <-w.done:
		return events.RoomSnapshot{}, errRoomReleased
	case <-ctx.Done():
		return events.RoomSnapshot{}, ctx.Err()
	}

	// Once accepted the worker always replies before reading the next request.
	res := <-req.reply
	return res.snapshot, res.err
}

func (w *roomWorker) run(ctx context.Context) {
	defer close(w.done)
	defer w.stopGrace()
	defer w.stopTicker()

	log.Info().Str("room_id", w.id).Bool("restored", w.restored).Msg("room worker started")

	if w.restored {
		w.armGrace()
		w.syncTicker(true)
		w.emit(events.CueRestored)
	}

	for {
		var tickC, graceC <-chan time.Time
		if w.ticker != nil {
			tickC = w.ticker.Chan()
		}
		if w.grace != nil {
			graceC = w.grace.Chan()
		}

		select {
		case <-ctx.Done():
			log.Info().Str("room_id", w.id).Msg("room worker shutting down")
			return

		case req := <-w.cmdCh:
			req.reply <- w.handle(req)

		case <-tickC:
			w.handleTick()

		case <-graceC:
			w.grace = nil
			if w.state.participants.count() > 0 {
				continue
			}
			log.Info().
				Str("room_id", w.id).
				Dur("grace_period", w.cfg.GracePeriod).
				Msg("room empty past grace period, releasing")
			w.release(w)
			return
		}
	}
}

func (w *roomWorker) handle(req commandRequest) commandResult {
	if req.query {
		return commandResult{snapshot: w.snapshot(w.lastCue, w.clock.Now())}
	}

	cmd := req.cmd
	switch cmd.Type {
	case CommandAttach:
		if w.state.participants.attach(cmd.ParticipantID, cmd.Name) {
			log.Info().
				Str("room_id", w.id).
				Str("participant_id", cmd.ParticipantID).
				Int("user_count", w.state.participants.count()).
				Msg("participant attached")
		}
		w.stopGrace()
		return commandResult{snapshot: w.emit(events.CueAttached)}

	case CommandDetach:
		if !w.state.participants.detach(cmd.ParticipantID) {
			return w.reject(cmd, unknownParticipant(w.id, cmd.ParticipantID))
		}
		if w.state.participants.count() == 0 {
			w.armGrace()
		}
		log.Info().
			Str("room_id", w.id).
			Str("participant_id", cmd.ParticipantID).
			Int("user_count", w.state.participants.count()).
			Msg("participant detached")
		return commandResult{snapshot: w.emit(events.CueDetached)}

	case CommandUpdateName:
		if !w.state.participants.rename(cmd.ParticipantID, cmd.Name) {
			return w.reject(cmd, unknownParticipant(w.id, cmd.ParticipantID))
		}
		return commandResult{snapshot: w.emit(events.CueRenamed)}
	}

	cue, err := w.state.apply(cmd, w.clock.Now())
	if err != nil {
		return w.reject(cmd, err)
	}

	switch cmd.Type {
	case CommandStartWork, CommandStartBreak, CommandResume, CommandReset:
		w.syncTicker(true)
	default:
		w.syncTicker(false)
	}

	snap := w.emit(cue)
	log.Info().
		Str("room_id", w.id).
		Str("participant_id", cmd.ParticipantID).
		Str("command", string(cmd.Type)).
		Str("mode", snap.Mode).
		Uint64("seq", snap.Seq).
		Msg("command applied")
	return commandResult{snapshot: snap}
}

func (w *roomWorker) reject(cmd Command, err error) commandResult {
	log.Debug().
		Err(err).
		Str("room_id", w.id).
		Str("participant_id", cmd.ParticipantID).
		Str("command", string(cmd.Type)).
		Msg("command rejected")
	return commandResult{snapshot: w.snapshot(w.lastCue, w.clock.Now()), err: err}
}

func (w *roomWorker) handleTick() {
	cue, ok := w.state.tick(w.clock.Now())
	if !ok {
		// Unreachable while the ticker is detached on every exit from a countdown mode.
		log.Warn().Str("room_id", w.id).Str("mode", string(w.state.Mode)).Msg("ignoring stale tick")
		w.stopTicker()
		return
	}
	w.syncTicker(false)
	snap := w.emit(cue)

	if cue == events.CueCompleted {
		log.Info().
			Str("room_id", w.id).
			Str("timer_type", snap.TimerType).
			Int("total_work_time", snap.Stats.TotalWorkTime).
			Msg("countdown completed")
	}
}

// emit advances seq and hands a fresh snapshot to the emitter without waiting.
func (w *roomWorker) emit(cue events.Cue) events.RoomSnapshot {
	now := w.clock.Now()
	w.state.seq++
	w.lastCue = cue
	w.emitter.Emit(w.snapshot(cue, now))
	return w.snapshot(cue, now)
}

func (w *roomWorker) snapshot(cue events.Cue, now time.Time) events.RoomSnapshot {
	snap := w.state.snapshot(w.id, cue, now)
	snap.Epoch = w.epoch
	return snap
}

// syncTicker keeps exactly one ticker alive while the room counts down.
func (w *roomWorker) syncTicker(restart bool) {
	if !w.state.Mode.CountingDown() {
		w.stopTicker()
		return
	}
	if restart || w.ticker == nil {
		w.stopTicker()
		w.ticker = w.clock.NewTicker(tickInterval)
	}
}

// stopTicker stops the ticker and forgets its channel, so a tick already
// buffered in it can never be consumed.
func (w *roomWorker) stopTicker() {
	if w.ticker != nil {
		w.ticker.Stop()
		w.ticker = nil
	}
}

func (w *roomWorker) armGrace() {
	w.stopGrace()
	w.grace = w.clock.NewTimer(w.cfg.GracePeriod)
}

func (w *roomWorker) stopGrace() {
	if w.grace != nil {
		stopAndDrainTimer(w.grace)
		w.grace = nil
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
