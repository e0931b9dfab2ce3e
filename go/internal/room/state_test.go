package room

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mcdev12/focusroom/go/internal/room/events"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func mustApply(t *testing.T, s *State, cmd Command) events.Cue {
	t.Helper()
	cue, err := s.apply(cmd, testNow)
	if err != nil {
		t.Fatalf("apply %s in %s: %v", cmd.Type, s.Mode, err)
	}
	return cue
}

func tickN(t *testing.T, s *State, n int) events.Cue {
	t.Helper()
	var cue events.Cue
	for i := 0; i < n; i++ {
		c, ok := s.tick(testNow)
		if !ok {
			t.Fatalf("tick %d rejected in mode %s", i, s.Mode)
		}
		cue = c
	}
	return cue
}

func TestStateGuardTable(t *testing.T) {
	work := Command{Type: CommandStartWork, DurationMinutes: 25}
	brk := Command{Type: CommandStartBreak, DurationMinutes: 5}

	tests := []struct {
		name    string
		setup   []Command
		cmd     Command
		want    Mode
		wantErr error
	}{
		{name: "idle startWork", cmd: work, want: ModeWorking},
		{name: "idle startBreak", cmd: brk, want: ModeBreak},
		{name: "working pause", setup: []Command{work}, cmd: Command{Type: CommandPause}, want: ModePaused},
		{name: "break pause", setup: []Command{brk}, cmd: Command{Type: CommandPause}, want: ModeBreakPaused},
		{name: "paused resume", setup: []Command{work, {Type: CommandPause}}, cmd: Command{Type: CommandResume}, want: ModeWorking},
		{name: "break-paused resume", setup: []Command{brk, {Type: CommandPause}}, cmd: Command{Type: CommandResume}, want: ModeBreak},
		{name: "paused reset", setup: []Command{work, {Type: CommandPause}}, cmd: Command{Type: CommandReset}, want: ModeWorking},
		{name: "break-paused reset", setup: []Command{brk, {Type: CommandPause}}, cmd: Command{Type: CommandReset}, want: ModeBreak},
		{name: "working stop", setup: []Command{work}, cmd: Command{Type: CommandStop}, want: ModeStopped},
		{name: "paused stop", setup: []Command{work, {Type: CommandPause}}, cmd: Command{Type: CommandStop}, want: ModeStopped},
		{name: "break goToIdle", setup: []Command{brk}, cmd: Command{Type: CommandGoToIdle}, want: ModeIdle},
		{name: "stopped goToIdle", setup: []Command{work, {Type: CommandStop}}, cmd: Command{Type: CommandGoToIdle}, want: ModeIdle},

		{name: "working startWork", setup: []Command{work}, cmd: work, want: ModeWorking, wantErr: ErrInvalidCommand},
		{name: "break startWork", setup: []Command{brk}, cmd: work, want: ModeBreak, wantErr: ErrInvalidCommand},
		{name: "idle pause", cmd: Command{Type: CommandPause}, want: ModeIdle, wantErr: ErrInvalidCommand},
		{name: "double pause", setup: []Command{work, {Type: CommandPause}}, cmd: Command{Type: CommandPause}, want: ModePaused, wantErr: ErrInvalidCommand},
		{name: "working resume", setup: []Command{work}, cmd: Command{Type: CommandResume}, want: ModeWorking, wantErr: ErrInvalidCommand},
		{name: "idle reset", cmd: Command{Type: CommandReset}, want: ModeIdle, wantErr: ErrInvalidCommand},
		{name: "stopped reset", setup: []Command{work, {Type: CommandStop}}, cmd: Command{Type: CommandReset}, want: ModeStopped, wantErr: ErrInvalidCommand},
		{name: "break stop", setup: []Command{brk}, cmd: Command{Type: CommandStop}, want: ModeBreak, wantErr: ErrInvalidCommand},
		{name: "working goToIdle", setup: []Command{work}, cmd: Command{Type: CommandGoToIdle}, want: ModeWorking, wantErr: ErrInvalidCommand},
		{name: "idle goToIdle", cmd: Command{Type: CommandGoToIdle}, want: ModeIdle, wantErr: ErrInvalidCommand},
		{name: "unknown type", cmd: Command{Type: "launch"}, want: ModeIdle, wantErr: ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newState()
			for _, c := range tt.setup {
				mustApply(t, s, c)
			}
			before := s.snapshot("r", "", testNow)

			_, err := s.apply(tt.cmd, testNow)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("apply error = %v, want %v", err, tt.wantErr)
			}
			if s.Mode != tt.want {
				t.Errorf("mode = %s, want %s", s.Mode, tt.want)
			}
			if tt.wantErr != nil {
				if diff := cmp.Diff(before, s.snapshot("r", "", testNow)); diff != "" {
					t.Errorf("rejected command mutated state (-before +after):\n%s", diff)
				}
			}
		})
	}
}

func TestStateNaturalExpiryRecordsFullDuration(t *testing.T) {
	s := newState()
	mustApply(t, s, Command{Type: CommandStartWork, DurationMinutes: 1})

	if cue := tickN(t, s, 59); cue != events.CueTick {
		t.Fatalf("cue after 59 ticks = %s, want tick", cue)
	}
	if s.Mode != ModeWorking || s.TimerRemaining != 1 {
		t.Fatalf("after 59 ticks mode=%s remaining=%d", s.Mode, s.TimerRemaining)
	}
	if cue := tickN(t, s, 1); cue != events.CueCompleted {
		t.Fatalf("final cue = %s, want completed", cue)
	}

	if s.Mode != ModeStopped || s.TimerRemaining != 0 || s.TimerType != TimerWork {
		t.Errorf("after expiry mode=%s remaining=%d type=%s", s.Mode, s.TimerRemaining, s.TimerType)
	}
	want := []events.WorkSession{{Duration: 60, CompletedAt: testNow}}
	if diff := cmp.Diff(want, s.WorkSessions()); diff != "" {
		t.Errorf("work sessions (-want +got):\n%s", diff)
	}
	if s.TotalWorkTime() != 60 {
		t.Errorf("total work time = %d, want 60", s.TotalWorkTime())
	}

	if _, ok := s.tick(testNow); ok {
		t.Error("tick accepted in stopped mode")
	}
}

func TestStateBreakExpiryRecordsNothing(t *testing.T) {
	s := newState()
	mustApply(t, s, Command{Type: CommandStartBreak, DurationMinutes: 1})
	if cue := tickN(t, s, 60); cue != events.CueCompleted {
		t.Fatalf("final cue = %s, want completed", cue)
	}
	if s.Mode != ModeStopped || s.TimerType != TimerBreak {
		t.Errorf("after break expiry mode=%s type=%s", s.Mode, s.TimerType)
	}
	if len(s.WorkSessions()) != 0 || s.TotalWorkTime() != 0 {
		t.Errorf("break expiry recorded work: %v", s.WorkSessions())
	}

	mustApply(t, s, Command{Type: CommandGoToIdle})
	if s.TimerType != TimerNone || s.TimerDuration != 0 {
		t.Errorf("goToIdle kept timer type=%s duration=%d", s.TimerType, s.TimerDuration)
	}
}

func TestStateStopRecordsElapsed(t *testing.T) {
	s := newState()
	mustApply(t, s, Command{Type: CommandStartWork, DurationMinutes: 25})
	tickN(t, s, 600)
	if cue := mustApply(t, s, Command{Type: CommandStop}); cue != events.CueStopped {
		t.Fatalf("cue = %s, want stopped", cue)
	}

	if s.TimerRemaining != 0 {
		t.Errorf("remaining = %d, want 0", s.TimerRemaining)
	}
	if diff := cmp.Diff([]events.WorkSession{{Duration: 600, CompletedAt: testNow}}, s.WorkSessions()); diff != "" {
		t.Errorf("work sessions (-want +got):\n%s", diff)
	}
	if s.TotalWorkTime() != 600 {
		t.Errorf("total work time = %d, want 600", s.TotalWorkTime())
	}
}

func TestStateStopImmediatelyRecordsNothing(t *testing.T) {
	s := newState()
	mustApply(t, s, Command{Type: CommandStartWork, DurationMinutes: 25})
	mustApply(t, s, Command{Type: CommandStop})
	if len(s.WorkSessions()) != 0 {
		t.Errorf("zero-length session recorded: %v", s.WorkSessions())
	}
	if s.Mode != ModeStopped {
		t.Errorf("mode = %s, want stopped", s.Mode)
	}
}

func TestStateResetRestoresDuration(t *testing.T) {
	s := newState()
	mustApply(t, s, Command{Type: CommandStartWork, DurationMinutes: 10})
	tickN(t, s, 42)
	mustApply(t, s, Command{Type: CommandPause})
	mustApply(t, s, Command{Type: CommandReset})

	if s.TimerRemaining != 600 || s.Mode != ModeWorking {
		t.Errorf("after reset mode=%s remaining=%d, want working 600", s.Mode, s.TimerRemaining)
	}
}

func TestStateTotalWorkTimeMatchesSessions(t *testing.T) {
	s := newState()
	for _, elapsed := range []int{10, 45, 60} {
		mustApply(t, s, Command{Type: CommandStartWork, DurationMinutes: 1})
		if elapsed == 60 {
			tickN(t, s, 60)
		} else {
			tickN(t, s, elapsed)
			mustApply(t, s, Command{Type: CommandStop})
		}
		mustApply(t, s, Command{Type: CommandGoToIdle})
	}

	sum := 0
	for _, ws := range s.WorkSessions() {
		sum += ws.Duration
	}
	if sum != s.TotalWorkTime() {
		t.Errorf("sum of sessions %d != total %d", sum, s.TotalWorkTime())
	}
}

func TestStateRemainingStaysBounded(t *testing.T) {
	s := newState()
	mustApply(t, s, Command{Type: CommandStartBreak, DurationMinutes: 1})
	prev := s.TimerRemaining
	for s.Mode == ModeBreak {
		if _, ok := s.tick(testNow); !ok {
			t.Fatal("tick rejected while counting down")
		}
		if s.TimerRemaining < 0 || s.TimerRemaining > s.TimerDuration {
			t.Fatalf("remaining %d outside [0, %d]", s.TimerRemaining, s.TimerDuration)
		}
		if s.TimerRemaining >= prev {
			t.Fatalf("remaining did not decrease: %d -> %d", prev, s.TimerRemaining)
		}
		prev = s.TimerRemaining
	}
}

func TestStateFromSnapshot(t *testing.T) {
	snap := events.RoomSnapshot{
		RoomID:         "r",
		Seq:            41,
		Mode:           string(ModePaused),
		TimerType:      string(TimerWork),
		TimerDuration:  1500,
		TimerRemaining: 900,
		WorkSessions: []events.WorkSession{
			{Duration: 300, CompletedAt: testNow},
			{Duration: 1500, CompletedAt: testNow.Add(time.Hour)},
		},
		Participants: []events.Participant{{ID: "u1", Name: "Ada"}},
	}

	s := stateFromSnapshot(snap)
	if s.TotalWorkTime() != 1800 {
		t.Errorf("total work time = %d, want 1800", s.TotalWorkTime())
	}
	if s.participants.count() != 0 {
		t.Errorf("participants restored: %d", s.participants.count())
	}

	got := s.snapshot("r", events.CueRestored, testNow)
	want := snap
	want.Participants = []events.Participant{}
	want.Stats = events.RoomStats{TotalWorkTime: 1800}
	want.Cue = events.CueRestored
	want.ServerTime = testNow
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot (-want +got):\n%s", diff)
	}
}

func TestParticipantsScopedRename(t *testing.T) {
	p := newParticipants()
	if !p.attach("u1", "Ada") {
		t.Error("first attach not reported as new")
	}
	if p.attach("u1", "Ada L.") {
		t.Error("re-attach reported as new")
	}
	p.attach("u2", "Ada")

	if p.rename("u3", "Mallory") {
		t.Error("rename of unattached identity succeeded")
	}
	p.rename("u2", "Grace")

	want := []events.Participant{{ID: "u1", Name: "Ada L."}, {ID: "u2", Name: "Grace"}}
	if diff := cmp.Diff(want, p.list()); diff != "" {
		t.Errorf("participants (-want +got):\n%s", diff)
	}
	if !p.detach("u1") || p.detach("u1") {
		t.Error("detach should succeed once")
	}
	if p.count() != 1 {
		t.Errorf("count = %d, want 1", p.count())
	}
}
