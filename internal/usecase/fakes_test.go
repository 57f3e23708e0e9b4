package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"signscribe/internal/domain"
	"signscribe/internal/ports"
)

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (c *fakeClock) NewTicker(_ time.Duration) ports.Ticker {
	ticker := &fakeTicker{ch: make(chan time.Time)}
	c.mu.Lock()
	c.tickers = append(c.tickers, ticker)
	c.mu.Unlock()
	return ticker
}

// Tick hands one tick to the newest running ticker and returns once its timer
// goroutine has received it.
func (c *fakeClock) Tick(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ticker := c.running()
		if ticker == nil {
			time.Sleep(2 * time.Millisecond)
			continue
		}
		select {
		case ticker.ch <- time.Now():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatalf("no running ticker accepted a tick")
}

func (c *fakeClock) running() *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.tickers) - 1; i >= 0; i-- {
		if !c.tickers[i].isStopped() {
			return c.tickers[i]
		}
	}
	return nil
}

// runningCount reports tickers that were started and never stopped.
func (c *fakeClock) runningCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, ticker := range c.tickers {
		if !ticker.isStopped() {
			count++
		}
	}
	return count
}

type fakeTicker struct {
	ch chan time.Time

	mu      sync.Mutex
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeTicker) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeCapture struct {
	mu       sync.Mutex
	sessions []*fakeCaptureSession
	err      error
	configs  []ports.CaptureConfig

	// readErr is returned by every session once its chunks are consumed.
	readErr error

	// hold, when set, blocks Start until it is closed.
	hold    chan struct{}
	holding int

	// stopHold, when set, blocks every session's Stop until it is closed.
	stopHold chan struct{}
}

func (f *fakeCapture) Start(_ context.Context, cfg ports.CaptureConfig) (ports.CaptureSession, error) {
	f.mu.Lock()
	hold := f.hold
	if hold != nil {
		f.holding++
	}
	f.mu.Unlock()
	if hold != nil {
		<-hold
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.configs = append(f.configs, cfg)
	session := newFakeCaptureSession([]byte("frag"))
	session.readErr = f.readErr
	session.stopHold = f.stopHold
	f.sessions = append(f.sessions, session)
	return session, nil
}

func (f *fakeCapture) heldStarts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holding
}

func (f *fakeCapture) startedConfigs() []ports.CaptureConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.CaptureConfig(nil), f.configs...)
}

func (f *fakeCapture) started() []*fakeCaptureSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeCaptureSession, len(f.sessions))
	copy(out, f.sessions)
	return out
}

// fakeCaptureSession yields its chunks, then blocks until stopped.
type fakeCaptureSession struct {
	chunks  chan []byte
	stopped chan struct{}
	readErr error

	stopHold chan struct{}

	mu         sync.Mutex
	stopCalls  int
	closeCalls int
	once       sync.Once
}

func newFakeCaptureSession(chunks ...[]byte) *fakeCaptureSession {
	session := &fakeCaptureSession{chunks: make(chan []byte, 16), stopped: make(chan struct{})}
	for _, chunk := range chunks {
		session.chunks <- chunk
	}
	return session
}

func (f *fakeCaptureSession) push(chunk []byte) {
	f.chunks <- chunk
}

func (f *fakeCaptureSession) Read(p []byte) (int, error) {
	select {
	case chunk := <-f.chunks:
		return copy(p, chunk), nil
	default:
	}
	if f.readErr != nil {
		return 0, f.readErr
	}
	select {
	case chunk := <-f.chunks:
		return copy(p, chunk), nil
	case <-f.stopped:
		select {
		case chunk := <-f.chunks:
			return copy(p, chunk), nil
		default:
			return 0, io.EOF
		}
	}
}

func (f *fakeCaptureSession) Stop() error {
	f.mu.Lock()
	f.stopCalls++
	f.mu.Unlock()
	if f.stopHold != nil {
		<-f.stopHold
	}
	f.once.Do(func() { close(f.stopped) })
	return nil
}

func (f *fakeCaptureSession) Close() error {
	f.mu.Lock()
	f.closeCalls++
	f.mu.Unlock()
	f.once.Do(func() { close(f.stopped) })
	return nil
}

func (f *fakeCaptureSession) calls() (stops int, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls, f.closeCalls
}

type fakeDevices struct {
	mu       sync.Mutex
	list     []domain.DeviceDescriptor
	openErr  error
	opened   int
	released int
}

func (f *fakeDevices) Open(_ context.Context, _ string) (io.Closer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	return closerFunc(func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.released++
		return nil
	}), nil
}

func (f *fakeDevices) List(_ context.Context) ([]domain.DeviceDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.DeviceDescriptor(nil), f.list...), nil
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

type fakePreviewStore struct {
	mu      sync.Mutex
	next    int
	live    map[string]domain.Blob
	revoked []string
	err     error
}

func newFakePreviewStore() *fakePreviewStore {
	return &fakePreviewStore{live: make(map[string]domain.Blob)}
}

func (f *fakePreviewStore) Create(blob domain.Blob) (domain.PreviewHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.PreviewHandle{}, f.err
	}
	f.next++
	id := fmt.Sprintf("p%d", f.next)
	f.live[id] = blob
	return domain.PreviewHandle{ID: id, URL: "/preview/" + id + ".webm"}, nil
}

func (f *fakePreviewStore) Revoke(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, id)
	f.revoked = append(f.revoked, id)
}

func (f *fakePreviewStore) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

type fakeClipboard struct {
	mu       sync.Mutex
	lastText string
	err      error
}

func (f *fakeClipboard) SetText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastText = text
	return f.err
}

type fakeSpeaker struct {
	spoken []string
	err    error
}

func (f *fakeSpeaker) Speak(_ context.Context, text string) error {
	f.spoken = append(f.spoken, text)
	return f.err
}

type fakeDetectionClient struct {
	mu sync.Mutex

	result    domain.DetectionResult
	err       error
	batch     domain.BatchResult
	batchErr  error
	healthErr error
	info      domain.ServerModelInfo
	infoErr   error

	block chan struct{}
	calls int
	sizes []domain.ModelSize
	blobs []domain.Blob
}

func (f *fakeDetectionClient) Detect(_ context.Context, blob domain.Blob, size domain.ModelSize) (domain.DetectionResult, error) {
	f.mu.Lock()
	f.calls++
	f.sizes = append(f.sizes, size)
	f.blobs = append(f.blobs, blob)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeDetectionClient) DetectBatch(_ context.Context, blobs []domain.Blob, size domain.ModelSize) (domain.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sizes = append(f.sizes, size)
	f.blobs = append(f.blobs, blobs...)
	return f.batch, f.batchErr
}

func (f *fakeDetectionClient) Health(_ context.Context) (domain.ServerHealth, error) {
	if f.healthErr != nil {
		return domain.ServerHealth{}, f.healthErr
	}
	return domain.ServerHealth{Status: "healthy"}, nil
}

func (f *fakeDetectionClient) ModelInfo(_ context.Context) (domain.ServerModelInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeDetectionClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeHistory struct {
	mu      sync.Mutex
	records []domain.HistoryRecord
	saveErr error
}

func (f *fakeHistory) Save(_ context.Context, record domain.HistoryRecord) (domain.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return domain.HistoryRecord{}, f.saveErr
	}
	record.ID = fmt.Sprintf("h%d", len(f.records)+1)
	f.records = append(f.records, record)
	return record, nil
}

func (f *fakeHistory) ListByUser(_ context.Context, userID string, limit int) ([]domain.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.HistoryRecord
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		if f.records[i].UserID == userID {
			out = append(out, f.records[i])
		}
	}
	return out, nil
}

func (f *fakeHistory) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, record := range f.records {
		if record.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

type fakeEventSink struct {
	mu sync.Mutex

	phases      []phaseEvent
	countdowns  []int
	elapsed     []int
	permissions []domain.PermissionState
	previews    []string
	results     []domain.ResultView
	errors      []errEvent
}

type phaseEvent struct {
	phase  domain.Phase
	reason domain.PhaseReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) PhaseChanged(phase domain.Phase, reason domain.PhaseReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phases = append(f.phases, phaseEvent{phase: phase, reason: reason})
}

func (f *fakeEventSink) CountdownTick(remaining int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countdowns = append(f.countdowns, remaining)
}

func (f *fakeEventSink) RecordingTick(elapsed int, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.elapsed = append(f.elapsed, elapsed)
}

func (f *fakeEventSink) PermissionChanged(state domain.PermissionState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permissions = append(f.permissions, state)
}

func (f *fakeEventSink) PreviewChanged(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previews = append(f.previews, url)
}

func (f *fakeEventSink) ResultChanged(view domain.ResultView) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, view)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotPhases() []phaseEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]phaseEvent, len(f.phases))
	copy(out, f.phases)
	return out
}

func (f *fakeEventSink) snapshotCountdowns() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.countdowns...)
}

func (f *fakeEventSink) snapshotElapsed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.elapsed...)
}

func (f *fakeEventSink) snapshotPermissions() []domain.PermissionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PermissionState(nil), f.permissions...)
}

func (f *fakeEventSink) snapshotResults() []domain.ResultView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ResultView(nil), f.results...)
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) lastPhase() phaseEvent {
	phases := f.snapshotPhases()
	if len(phases) == 0 {
		return phaseEvent{}
	}
	return phases[len(phases)-1]
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
