package manager

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modeldash/internal/backend"
	"modeldash/internal/backend/backendtest"
	"modeldash/internal/mutation"
	"modeldash/internal/view"
	"modeldash/pkg/types"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestManager(t *testing.T) (*Manager, *backendtest.Server, *view.Recorder) {
	t.Helper()
	srv := backendtest.New()
	t.Cleanup(srv.Close)
	rec := view.NewRecorder()
	m := NewWithConfig(ManagerConfig{
		Backend:    backend.NewClient(backend.ClientConfig{BaseURL: srv.URL, Logger: zerolog.Nop()}),
		BackendURL: srv.URL,
		View:       rec,
		Logger:     zerolog.Nop(),
	})
	return m, srv, rec
}

func TestManager_RefreshPopulatesCollections(t *testing.T) {
	m, srv, rec := newTestManager(t)
	srv.Installed(types.InstalledModel{Name: "a"}, types.InstalledModel{Name: "b"})
	srv.Running(types.RunningModel{Name: "a", Model: "a"})
	if m.Ready() {
		t.Fatalf("ready before first cycle")
	}
	st := m.Refresh(testCtx(t))
	if !st.OK || len(st.Collections) != 2 {
		t.Fatalf("status=%+v", st)
	}
	if !m.Ready() {
		t.Fatalf("not ready after first cycle")
	}
	if len(m.Installed()) != 2 || len(m.Running()) != 1 {
		t.Fatalf("installed=%v running=%v", m.Installed(), m.Running())
	}
	if st.Collections[0].Count != 2 || st.Collections[0].State != "idle" {
		t.Fatalf("collection status=%+v", st.Collections[0])
	}
	if n := len(rec.OfType(types.EventDelta)); n != 2 {
		t.Fatalf("delta events=%d want 2", n)
	}
}

func TestManager_StatusBeforeFirstCycle(t *testing.T) {
	m, _, _ := newTestManager(t)
	st := m.Status()
	if st.OK || st.Message != "Waiting for first refresh" {
		t.Fatalf("status=%+v", st)
	}
}

func TestManager_PartialFailureKeepsData(t *testing.T) {
	m, srv, _ := newTestManager(t)
	srv.Installed(types.InstalledModel{Name: "a"})
	m.Refresh(testCtx(t))
	srv.FailPS(1)
	srv.FailList(1)
	st := m.Refresh(testCtx(t))
	if st.OK {
		t.Fatalf("expected failure: %+v", st)
	}
	if st.Collections[0].Error == "" {
		t.Fatalf("error not reported: %+v", st.Collections[0])
	}
	if len(m.Installed()) != 1 {
		t.Fatalf("failed refresh cleared data")
	}
}

func TestManager_DeleteSettlesAndRefreshes(t *testing.T) {
	m, srv, _ := newTestManager(t)
	srv.Installed(types.InstalledModel{Name: "a"}, types.InstalledModel{Name: "b"})
	m.Refresh(testCtx(t))

	mu, err := m.Delete(testCtx(t), "a")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := mu.Wait(testCtx(t)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	for _, im := range m.Installed() {
		if im.Name == "a" {
			t.Fatalf("a still listed")
		}
	}
	if err := m.Close(testCtx(t)); err != nil {
		t.Fatalf("close: %v", err)
	}
	if srv.Calls("tags") < 2 {
		t.Fatalf("no follow-up refresh: tags calls=%d", srv.Calls("tags"))
	}
}

func TestManager_PullAppearsAfterFollowUpRefresh(t *testing.T) {
	m, srv, rec := newTestManager(t)
	m.Refresh(testCtx(t))
	mu, err := m.Pull(testCtx(t), "llama3")
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if err := mu.Wait(testCtx(t)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := m.Close(testCtx(t)); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !srv.Has("llama3") {
		t.Fatalf("backend did not install model")
	}
	found := false
	for _, im := range m.Installed() {
		found = found || im.Name == "llama3"
	}
	if !found {
		t.Fatalf("pulled model not mirrored: %v", m.Installed())
	}
	if len(rec.OfType(types.EventProgress)) != 4 {
		t.Fatalf("progress events=%d", len(rec.OfType(types.EventProgress)))
	}
}

func TestManager_DeleteRaceWithSlowPoll(t *testing.T) {
	m, srv, _ := newTestManager(t)
	srv.Installed(types.InstalledModel{Name: "a"})
	m.Refresh(testCtx(t))

	// a poll starts and stalls while the backend still lists a
	release := srv.Gate("tags")
	pollDone := make(chan types.StatusResponse, 1)
	go func() { pollDone <- m.Refresh(context.Background()) }()
	deadline := time.Now().Add(2 * time.Second)
	for srv.Calls("tags") < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	mu, err := m.Delete(testCtx(t), "a")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := mu.Wait(testCtx(t)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	// the fake daemon answers from its state at handler time, so make the
	// stale poll return a listing that still contains a
	srv.Installed(types.InstalledModel{Name: "a"})
	release()
	<-pollDone
	for _, im := range m.Installed() {
		if im.Name == "a" {
			t.Fatalf("stale poll resurrected a")
		}
	}
	_ = m.Close(testCtx(t))
}

func TestManager_ShowAndValidation(t *testing.T) {
	m, srv, _ := newTestManager(t)
	srv.Installed(types.InstalledModel{Name: "a", Family: "llama"})
	d, err := m.Show(testCtx(t), "a")
	if err != nil || d.Details == nil || d.Details.Family != "llama" {
		t.Fatalf("show=%+v err=%v", d, err)
	}
	if _, err := m.Show(testCtx(t), " "); !mutation.IsInvalid(err) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if _, err := m.Show(testCtx(t), "missing"); !backend.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestManager_SubscribeReceivesEvents(t *testing.T) {
	m, srv, _ := newTestManager(t)
	ch, cancel := m.Subscribe(16)
	defer cancel()
	srv.Installed(types.InstalledModel{Name: "a"})
	m.Refresh(testCtx(t))
	seen := map[types.EventType]bool{}
	for len(ch) > 0 {
		e := <-ch
		seen[e.Type] = true
	}
	if !seen[types.EventDelta] || !seen[types.EventRefreshStatus] {
		t.Fatalf("seen=%v", seen)
	}
}
