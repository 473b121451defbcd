package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"superkeys/internal/fsm"
	"superkeys/internal/keycode"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAndClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	info, err := os.Stat(dbPath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 600", perm)
	}
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil db should not error: %v", err)
	}
}

func TestMigrationsApplied(t *testing.T) {
	s := openTest(t)
	v, err := s.Version()
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if v != LatestVersion() {
		t.Errorf("version = %d, want %d", v, LatestVersion())
	}

	// Running again is a no-op.
	if err := MigrateDB(s.db); err != nil {
		t.Fatalf("second MigrateDB failed: %v", err)
	}
}

func TestRollbackMigration(t *testing.T) {
	s := openTest(t)
	if err := RollbackMigration(s.db); err != nil {
		t.Fatalf("RollbackMigration failed: %v", err)
	}
	v, _ := s.Version()
	if v != LatestVersion()-1 {
		t.Errorf("version after rollback = %d", v)
	}
	if err := MigrateDB(s.db); err != nil {
		t.Fatalf("re-migrate failed: %v", err)
	}
}

func TestInsertAndRecent(t *testing.T) {
	s := openTest(t)
	base := time.Unix(1700000000, 0)

	var batch []Transition
	for i := 0; i < 5; i++ {
		batch = append(batch, Transition{
			Time:        base.Add(time.Duration(i) * time.Millisecond),
			Code:        "KEY_A",
			Pressed:     i%2 == 0,
			StateBefore: "neutral",
			StateAfter:  "ctrl_ambiguous",
			Result:      "suppress",
		})
	}
	if err := s.InsertTransitions(batch); err != nil {
		t.Fatalf("InsertTransitions failed: %v", err)
	}

	got, err := s.Recent(3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent returned %d rows, want 3", len(got))
	}
	if !got[0].Time.Equal(base.Add(2*time.Millisecond)) {
		t.Errorf("first row time = %v", got[0].Time)
	}
	if got[0].ID >= got[2].ID {
		t.Error("rows should be oldest first")
	}
	if !got[0].Pressed || got[1].Pressed {
		t.Error("pressed flag not preserved")
	}
}

func TestInsertEmptyBatch(t *testing.T) {
	s := openTest(t)
	if err := s.InsertTransitions(nil); err != nil {
		t.Errorf("empty batch should not error: %v", err)
	}
}

func TestSessions(t *testing.T) {
	s := openTest(t)
	start := time.Unix(1700000000, 0)

	id, err := s.StartSession(start, "/etc/superkeys.toml")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := s.InsertTransitions([]Transition{{
		SessionID: id, Time: start, Code: "KEY_B",
		StateBefore: "neutral", StateAfter: "neutral", Result: "pass",
	}}); err != nil {
		t.Fatalf("InsertTransitions failed: %v", err)
	}
	if err := s.EndSession(id, start.Add(time.Hour)); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	sessions, err := s.Sessions(10)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ConfigPath != "/etc/superkeys.toml" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
	if _, err := uuid.Parse(sessions[0].UUID); err != nil {
		t.Errorf("session uuid %q: %v", sessions[0].UUID, err)
	}
	if !sessions[0].EndedAt.Equal(start.Add(time.Hour)) {
		t.Errorf("ended_at = %v", sessions[0].EndedAt)
	}

	recent, _ := s.Recent(1)
	if recent[0].SessionID != id {
		t.Errorf("session id = %d, want %d", recent[0].SessionID, id)
	}
}

func TestPruneAndStats(t *testing.T) {
	s := openTest(t)
	base := time.Unix(1700000000, 0)

	rows := []Transition{
		{Time: base, Code: "KEY_A", StateBefore: "neutral", StateAfter: "neutral", Result: "pass"},
		{Time: base.Add(time.Minute), Code: "KEY_CAPSLOCK", StateBefore: "neutral", StateAfter: "ctrl_ambiguous", Result: "suppress"},
		{Time: base.Add(2 * time.Minute), Code: "KEY_CAPSLOCK", StateBefore: "ctrl_ambiguous", StateAfter: "neutral", Result: "suppress"},
	}
	if err := s.InsertTransitions(rows); err != nil {
		t.Fatalf("InsertTransitions failed: %v", err)
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Transitions != 3 {
		t.Errorf("transitions = %d, want 3", st.Transitions)
	}
	if st.ByState["neutral"] != 2 || st.ByState["ctrl_ambiguous"] != 1 {
		t.Errorf("by state = %v", st.ByState)
	}
	if !st.Oldest.Equal(base) || !st.Newest.Equal(base.Add(2*time.Minute)) {
		t.Errorf("range = %v .. %v", st.Oldest, st.Newest)
	}

	n, err := s.Prune(base.Add(90 * time.Second))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d rows, want 2", n)
	}
}

func TestStatsEmpty(t *testing.T) {
	s := openTest(t)
	st, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Transitions != 0 || !st.Oldest.IsZero() {
		t.Errorf("unexpected stats on empty store: %+v", st)
	}
}

func TestFromStep(t *testing.T) {
	step := fsm.Step{
		Time:    time.Unix(1, 0),
		Code:    keycode.SuperCtrl,
		Pressed: true,
		Before:  fsm.Neutral,
		After:   fsm.CtrlAmbiguous,
		Result:  fsm.Suppress,
	}
	tr := FromStep(step, 7)
	if tr.SessionID != 7 || tr.StateBefore != fsm.Neutral.String() || tr.StateAfter != fsm.CtrlAmbiguous.String() {
		t.Errorf("unexpected row: %+v", tr)
	}
	if tr.Result != fsm.Suppress.String() || tr.Code != keycode.SuperCtrl.String() {
		t.Errorf("unexpected row: %+v", tr)
	}
}

func TestWriterFlushesOnCancel(t *testing.T) {
	s := openTest(t)
	w := NewWriter(s, 0, WithBatch(1000, time.Hour))

	for i := 0; i < 10; i++ {
		if !w.Enqueue(fsm.Step{Time: time.Unix(1, 0), Code: keycode.Code(30)}) {
			t.Fatal("Enqueue rejected with empty queue")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	cancel()
	<-w.Done()

	if w.Written() != 10 {
		t.Errorf("written = %d, want 10", w.Written())
	}
	got, _ := s.Recent(100)
	if len(got) != 10 {
		t.Errorf("stored %d rows, want 10", len(got))
	}
}

func TestWriterDropsWhenFull(t *testing.T) {
	s := openTest(t)
	drops := 0
	w := NewWriter(s, 0, WithQueueSize(2), WithDropHook(func() { drops++ }))

	w.Enqueue(fsm.Step{})
	w.Enqueue(fsm.Step{})
	if w.Enqueue(fsm.Step{}) {
		t.Error("third Enqueue should be dropped")
	}
	if w.Dropped() != 1 || drops != 1 {
		t.Errorf("dropped = %d, hook = %d", w.Dropped(), drops)
	}
}

func TestWriterFlushesFullBatch(t *testing.T) {
	s := openTest(t)
	w := NewWriter(s, 0, WithBatch(2, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); <-w.Done() }()
	go w.Run(ctx)

	w.Enqueue(fsm.Step{Time: time.Unix(1, 0)})
	w.Enqueue(fsm.Step{Time: time.Unix(2, 0)})

	deadline := time.Now().Add(2 * time.Second)
	for w.Written() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.Written() != 2 {
		t.Errorf("written = %d, want 2", w.Written())
	}
}
