package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func createOne(t *testing.T, s *Store) *OrchestrationState {
	t.Helper()
	st, err := s.Create(CreateOpts{
		Workdir:   "/tmp/proj",
		Branch:    "main",
		Ecosystem: "go",
		MaxLocal:  10,
		MaxRemote: 5,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return st
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	st := createOne(t, s)

	if st.ID == "" {
		t.Fatal("expected a ULID")
	}
	if st.Phase != PhaseIdle {
		t.Errorf("phase = %s, want idle", st.Phase)
	}

	got, err := s.Get(st.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Workdir != "/tmp/proj" || got.MaxLocal != 10 || got.MaxRemote != 5 {
		t.Errorf("unexpected state: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("01ARZ3NDEKTSV4RRFFQ69G5FAV"); err == nil {
		t.Error("expected not-found error")
	}
}

func TestUpdate_TransitionsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	st := createOne(t, s)

	for _, move := range []struct {
		to     Phase
		reason string
	}{
		{PhaseGating, "submission started"},
		{PhaseFixing, "3 issues found"},
		{PhaseGating, "fixes applied"},
		{PhaseCommitting, "gate passed"},
	} {
		if _, err := s.Update(st.ID, func(o *OrchestrationState) {
			o.MoveTo(move.to, move.reason)
		}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	got, err := s.Get(st.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Phase != PhaseCommitting {
		t.Errorf("phase = %s, want committing", got.Phase)
	}
	if len(got.Transitions) != 4 {
		t.Fatalf("expected 4 transitions, got %d", len(got.Transitions))
	}
	if got.Transitions[0].From != PhaseIdle || got.Transitions[0].To != PhaseGating {
		t.Errorf("unexpected first transition: %+v", got.Transitions[0])
	}
	if got.Transitions[3].To != PhaseCommitting {
		t.Errorf("unexpected last transition: %+v", got.Transitions[3])
	}
}

func TestRecordRun_Dedupes(t *testing.T) {
	st := &OrchestrationState{}
	st.RecordRun("abc", 101)
	st.RecordRun("abc", 101)
	st.RecordRun("abc", 102)
	st.RecordRun("def", 101)

	if len(st.SeenRuns["abc"]) != 2 {
		t.Errorf("expected 2 runs for abc, got %v", st.SeenRuns["abc"])
	}
	if len(st.SeenRuns["def"]) != 1 {
		t.Errorf("expected 1 run for def, got %v", st.SeenRuns["def"])
	}
}

func TestList_FilterByPhase(t *testing.T) {
	s := newTestStore(t)
	a := createOne(t, s)
	b := createOne(t, s)

	if _, err := s.Update(b.ID, func(o *OrchestrationState) {
		o.MoveTo(PhaseMonitoring, "")
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	all, err := s.List("")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 orchestrations, got %d", len(all))
	}

	monitoring, err := s.List(PhaseMonitoring)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(monitoring) != 1 || monitoring[0].ID != b.ID {
		t.Errorf("unexpected filtered list: %+v", monitoring)
	}
	_ = a
}

func TestArchive(t *testing.T) {
	s := newTestStore(t)
	st := createOne(t, s)

	// Not terminal yet: archive must refuse.
	if err := s.Archive(st.ID); err == nil {
		t.Error("expected error archiving a live orchestration")
	}

	if _, err := s.Update(st.ID, func(o *OrchestrationState) {
		o.MoveTo(PhaseSucceeded, "all CI runs green")
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Archive(st.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	// Gone from the live set, still readable by ID.
	live, err := s.List("")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(live) != 0 {
		t.Errorf("expected empty live set, got %+v", live)
	}

	got, err := s.Get(st.ID)
	if err != nil {
		t.Fatalf("get archived: %v", err)
	}
	if got.Phase != PhaseSucceeded {
		t.Errorf("phase = %s, want succeeded", got.Phase)
	}

	// Archived state is immutable.
	if _, err := s.Update(st.ID, func(o *OrchestrationState) {}); err == nil {
		t.Error("expected error updating archived orchestration")
	}
}

func TestSaveGateResultAndFailureLog(t *testing.T) {
	s := newTestStore(t)
	st := createOne(t, s)

	if err := s.SaveGateResult(st.ID, 1, []byte(`{"passed":false}`)); err != nil {
		t.Fatalf("save gate result: %v", err)
	}
	if err := s.SaveFailureLog(st.ID, 1, "--- FAIL: TestAPI"); err != nil {
		t.Fatalf("save failure log: %v", err)
	}

	gatePath := filepath.Join(s.BaseDir(), st.ID, "gates", "gate-1.json")
	if _, err := os.Stat(gatePath); err != nil {
		t.Errorf("gate result not written: %v", err)
	}
	logPath := filepath.Join(s.BaseDir(), st.ID, "ci-logs", "attempt-1.log")
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read failure log: %v", err)
	}
	if string(data) != "--- FAIL: TestAPI" {
		t.Errorf("unexpected log content: %q", data)
	}
}

func TestWriteAtomic_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := WriteAtomic(path, []byte("{}")); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestPhaseTerminal(t *testing.T) {
	terminal := []Phase{PhaseSucceeded, PhaseBlocked, PhaseTimedOut, PhaseCancelled}
	for _, p := range terminal {
		if !p.Terminal() {
			t.Errorf("%s should be terminal", p)
		}
	}
	for _, p := range []Phase{PhaseIdle, PhaseGating, PhaseFixing, PhaseMonitoring, PhaseRemediating} {
		if p.Terminal() {
			t.Errorf("%s should not be terminal", p)
		}
	}
}
