package widget

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/Vovarama1992/chatra-widget-engine/internal/logging"
)

// manualScheduler is a virtual clock. Tasks run only from Advance, never inside After.
type manualScheduler struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	tasks   []*manualTask
	delays  []time.Duration
	stopped bool
}

type manualTask struct {
	at  time.Duration
	seq int
	fn  func()
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{}
}

func (m *manualScheduler) After(d time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, d)
	if m.stopped {
		return func() {}
	}
	m.seq++
	t := &manualTask{at: m.now + d, seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, t)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.removeLocked(t)
	}
}

func (m *manualScheduler) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.tasks = nil
	m.mu.Unlock()
}

// Advance moves the clock forward by d, running due tasks in order. Tasks
// scheduled by a running task also run when they fall due within d.
func (m *manualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		sort.SliceStable(m.tasks, func(i, j int) bool {
			if m.tasks[i].at == m.tasks[j].at {
				return m.tasks[i].seq < m.tasks[j].seq
			}
			return m.tasks[i].at < m.tasks[j].at
		})
		if len(m.tasks) == 0 || m.tasks[0].at > target {
			m.now = target
			m.mu.Unlock()
			return
		}
		t := m.tasks[0]
		m.tasks = m.tasks[1:]
		m.now = t.at
		m.mu.Unlock()

		t.fn()
	}
}

// Flush runs everything scheduled within the next minute.
func (m *manualScheduler) Flush() {
	m.Advance(time.Minute)
}

func (m *manualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *manualScheduler) removeLocked(t *manualTask) {
	for i, x := range m.tasks {
		if x == t {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return
		}
	}
}

type fakeBackend struct {
	mu      sync.Mutex
	reqs    []ChatRequest
	respond func(req ChatRequest) (*ChatResponse, error)
}

func (f *fakeBackend) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	respond := f.respond
	f.mu.Unlock()
	if respond == nil {
		return &ChatResponse{Status: StatusOK}, nil
	}
	return respond(req)
}

func (f *fakeBackend) requests() []ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ChatRequest(nil), f.reqs...)
}

func offline(ChatRequest) (*ChatResponse, error) {
	return nil, fmt.Errorf("%w: connection refused", ErrDispatch)
}

type fakeHistory struct {
	mu    sync.Mutex
	msgs  map[string][]Message
	err   error
	calls []string
	// during runs inside History before it returns.
	during func(conversationID string)
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{msgs: make(map[string][]Message)}
}

func (f *fakeHistory) History(_ context.Context, id string) ([]Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	during, err := f.during, f.err
	msgs := append([]Message(nil), f.msgs[id]...)
	f.mu.Unlock()

	if during != nil {
		during(id)
	}
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (f *fakeHistory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStorage struct {
	mu    sync.Mutex
	fail  map[string]bool
	paths []string
}

func (f *fakeStorage) Upload(_ context.Context, path string, file LocalFile) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	if f.fail[file.Name] {
		return "", fmt.Errorf("%w: bucket unavailable", ErrUpload)
	}
	return "https://cdn.example.com/" + path, nil
}

type fakeGreeter struct {
	text string
	err  error
}

func (f fakeGreeter) Greeting(context.Context, string, string) (string, error) {
	return f.text, f.err
}

var errBoom = errors.New("boom")

type harness struct {
	s        *Session
	sched    *manualScheduler
	backend  *fakeBackend
	history  *fakeHistory
	storage  *fakeStorage
	profiles UserProfileStore
	reg      *prometheus.Registry
	log      *logging.TestLogger
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		sched:    newManualScheduler(),
		backend:  &fakeBackend{},
		history:  newFakeHistory(),
		storage:  &fakeStorage{fail: map[string]bool{}},
		profiles: NewMemoryProfiles(),
		reg:      prometheus.NewRegistry(),
		log:      logging.NewTestLogger(),
	}

	var n int
	var idMu sync.Mutex
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opts := Options{
		AgentID:   "agent-1",
		VisitorID: "visitor-1",
		Locale:    "en",
		Backend:   h.backend,
		History:   h.history,
		Storage:   h.storage,
		Profiles:  h.profiles,
		Scheduler: h.sched,
		Player:    DefaultPlayerConfig(),
		Logger:    h.log.Logger,
		Metrics:   NewMetrics(h.reg),
		Now:       func() time.Time { return clock },
		NewID: func() string {
			idMu.Lock()
			defer idMu.Unlock()
			n++
			return fmt.Sprintf("ref-%d", n)
		},
		Jitter: func() float64 { return 0 },
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	h.s = NewSession("session-1", opts)
	t.Cleanup(h.s.Close)
	return h
}

func (h *harness) transcriptLen() int {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.transcript.Len()
}

// counter reads a counter value from the harness registry.
func (h *harness) counter(t *testing.T, name, label, value string) float64 {
	t.Helper()
	families, err := h.reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label == "" {
				return m.GetCounter().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func roles(msgs []Message) []Role {
	out := make([]Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func contents(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func strPtr(s string) *string { return &s }
