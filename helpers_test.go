package appshell

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

// callLog records lifecycle calls across applications in the order they happen.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// index returns the position of call, or -1.
func (l *callLog) index(call string) int {
	for i, c := range l.snapshot() {
		if c == call {
			return i
		}
	}
	return -1
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.snapshot() {
		if c == call {
			n++
		}
	}
	return n
}

// testLifecycle is a Lifecycle that logs calls as "<name>:<action>". Gates,
// when set, block the matching call until closed.
type testLifecycle struct {
	name string
	log  *callLog

	bootstrapErr error
	mountErr     error
	unmountErr   error
	mountPanic   any

	bootstrapGate chan struct{}
	mountGate     chan struct{}
	unmountGate   chan struct{}

	mounts atomic.Int32
}

func newTestLifecycle(name string, log *callLog) *testLifecycle {
	return &testLifecycle{name: name, log: log}
}

func (l *testLifecycle) Bootstrap(ctx context.Context, _ Props) error {
	l.log.add(l.name + ":bootstrap")
	wait(l.bootstrapGate)
	return l.bootstrapErr
}

func (l *testLifecycle) Mount(ctx context.Context, _ Props) error {
	l.log.add(l.name + ":mount")
	wait(l.mountGate)
	if l.mountPanic != nil {
		panic(l.mountPanic)
	}
	if l.mountErr == nil {
		l.mounts.Add(1)
	}
	return l.mountErr
}

func (l *testLifecycle) Unmount(ctx context.Context, _ Props) error {
	l.log.add(l.name + ":unmount")
	wait(l.unmountGate)
	if l.unmountErr == nil {
		l.mounts.Add(-1)
	}
	return l.unmountErr
}

func wait(gate chan struct{}) {
	if gate != nil {
		<-gate
	}
}

// loaderFor returns a loader that logs "<name>:load" and resolves to lc.
func loaderFor(lc *testLifecycle) FunctionLoader {
	return func(context.Context) (Lifecycle, error) {
		lc.log.add(lc.name + ":load")
		return lc, nil
	}
}

// gatedLoader blocks until gate is closed, then resolves to lc.
func gatedLoader(lc *testLifecycle, gate chan struct{}) FunctionLoader {
	return func(context.Context) (Lifecycle, error) {
		lc.log.add(lc.name + ":load")
		<-gate
		return lc, nil
	}
}

func newTestShell(t *testing.T, opts ...Option) *Shell {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

// settle waits for f and fails the test when it is rejected.
func settle(t *testing.T, f *Future) []AppSnapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	apps, err := f.Wait(ctx)
	require.NoError(t, err)
	return apps
}

func startShell(t *testing.T, s *Shell) []AppSnapshot {
	t.Helper()
	f, err := s.Start()
	require.NoError(t, err)
	return settle(t, f)
}

func navigate(t *testing.T, s *Shell, rawURL string) []AppSnapshot {
	t.Helper()
	f, err := s.Navigate(rawURL)
	require.NoError(t, err)
	return settle(t, f)
}

func statusOf(t *testing.T, s *Shell, name string) Status {
	t.Helper()
	snap, ok := s.App(name)
	require.True(t, ok, "app %s not registered", name)
	return snap.Status
}

// recordingMetrics counts transitions and tracks pass concurrency.
type recordingMetrics struct {
	mu          sync.Mutex
	transitions map[string]int
	passes      map[string]int
	queueDepth  int
	mounted     int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{transitions: map[string]int{}, passes: map[string]int{}}
}

func (m *recordingMetrics) ObservePass(mode, result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes[mode+"/"+result]++
}

func (m *recordingMetrics) ObserveTransition(action, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[action+"/"+result]++
}

func (m *recordingMetrics) SetQueueDepth(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepth = depth
}

func (m *recordingMetrics) SetMounted(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mounted = count
}

func (m *recordingMetrics) totalTransitions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.transitions {
		n += c
	}
	return n
}

func (m *recordingMetrics) transitionCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitions[key]
}

// setStatus forces a status for registry tests that do not drive the state
// machine.
func (a *App) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.updatedAt = time.Now()
	a.mu.Unlock()
}
