package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"signscribe/internal/domain"
	"signscribe/internal/ports"
)

var (
	ErrCameraOff          = errors.New("camera is turned off")
	ErrPermissionRequired = errors.New("camera permission has not been granted")
	ErrRecorderBusy       = errors.New("a recording is already in progress")
	ErrNotRecording       = errors.New("no active recording")
	ErrNoRecording        = errors.New("no finalized recording")
	ErrRecorderClosed     = errors.New("recorder is closed")
)

// RecorderConfig controls capture behavior. The countdown and the recording
// cap are fixed in the domain package.
type RecorderConfig struct {
	InputFormat string
	FrameRate   int
	ChunkSize   int
	Tick        time.Duration
}

type activeCapture struct {
	session   ports.CaptureSession
	cancel    context.CancelFunc
	pumpDone  chan struct{}
	finalized chan struct{}
}

// Recorder is the idle -> counting_down -> recording -> stopped state machine.
type Recorder struct {
	capture ports.CaptureEngine
	gate    *PermissionGate
	preview *previewBuilder
	clock   ports.Clock
	events  ports.EventSink
	log     logrus.FieldLogger
	cfg     RecorderConfig

	mu         sync.Mutex
	phase      domain.Phase
	cameraOn   bool
	closed     bool
	countdown  int
	elapsed    int
	chunks     [][]byte
	blob       *domain.Blob
	timer      *intervalTimer
	active     *activeCapture
	finalizing bool
	starting   chan struct{}
	gen        uint64
	sessionCtx context.Context
}

func NewRecorder(
	capture ports.CaptureEngine,
	gate *PermissionGate,
	previews ports.PreviewStore,
	clock ports.Clock,
	events ports.EventSink,
	log logrus.FieldLogger,
	cfg RecorderConfig,
) *Recorder {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 32 * 1024
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Recorder{
		capture:  capture,
		gate:     gate,
		preview:  newPreviewBuilder(previews, events),
		clock:    clock,
		events:   events,
		log:      log.WithField("component", "recorder"),
		cfg:      cfg,
		phase:    domain.PhaseIdle,
		cameraOn: true,
	}
}

// Start discards any previous clip and begins the countdown.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return ErrRecorderClosed
	case !r.cameraOn:
		r.mu.Unlock()
		return ErrCameraOff
	case r.gate.State() != domain.PermissionGranted:
		r.mu.Unlock()
		return ErrPermissionRequired
	case r.phase == domain.PhaseCountingDown || r.phase == domain.PhaseRecording || r.finalizing:
		r.mu.Unlock()
		return ErrRecorderBusy
	}

	r.resetLocked()
	r.phase = domain.PhaseCountingDown
	r.countdown = domain.CountdownSeconds
	r.sessionCtx = ctx
	r.timer = startInterval(r.clock, r.cfg.Tick, r.countdownTick)
	r.mu.Unlock()

	r.log.Debug("countdown started")
	r.events.PhaseChanged(domain.PhaseCountingDown, domain.PhaseReasonCountdownStarted)
	r.events.CountdownTick(domain.CountdownSeconds)
	return nil
}

// Stop ends an active recording and returns the finalized clip. A stop that
// arrives while the capture is still starting waits for it and then stops.
func (r *Recorder) Stop() (domain.Blob, error) {
	r.mu.Lock()
	starting := r.starting
	r.mu.Unlock()
	if starting != nil {
		<-starting
	}
	return r.finish(domain.PhaseReasonStoppedByUser)
}

// Retake discards the finalized clip and returns to idle.
func (r *Recorder) Retake() error {
	r.mu.Lock()
	if r.phase != domain.PhaseStopped {
		r.mu.Unlock()
		return ErrNoRecording
	}
	r.resetLocked()
	r.mu.Unlock()

	r.events.PhaseChanged(domain.PhaseIdle, domain.PhaseReasonRetake)
	return nil
}

// Finalized returns the stopped clip with a token identifying its session.
func (r *Recorder) Finalized() (domain.Blob, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != domain.PhaseStopped || r.blob == nil {
		return domain.Blob{}, 0, ErrNoRecording
	}
	blob := *r.blob
	blob.Data = append([]byte(nil), r.blob.Data...)
	return blob, r.gen, nil
}

// CompleteSubmission resets the session whose clip was submitted. A session
// that was retaken in the meantime is left alone.
func (r *Recorder) CompleteSubmission(token uint64) bool {
	r.mu.Lock()
	if r.gen != token || r.phase != domain.PhaseStopped {
		r.mu.Unlock()
		return false
	}
	r.resetLocked()
	r.mu.Unlock()

	r.events.PhaseChanged(domain.PhaseIdle, domain.PhaseReasonSubmitted)
	return true
}

// SetCamera turns the camera on or off. Turning it off while recording stops
// the recording and keeps what was captured.
func (r *Recorder) SetCamera(on bool) error {
	r.mu.Lock()
	if r.cameraOn == on {
		r.mu.Unlock()
		return nil
	}
	r.cameraOn = on
	phase := r.phase
	aborted := false
	if !on && phase == domain.PhaseCountingDown {
		r.stopTimerLocked()
		r.phase = domain.PhaseIdle
		r.countdown = 0
		r.gen++
		aborted = true
	}
	r.mu.Unlock()

	if aborted {
		r.events.PhaseChanged(domain.PhaseIdle, domain.PhaseReasonCountdownAborted)
		return nil
	}
	if !on && phase == domain.PhaseRecording {
		if _, err := r.finish(domain.PhaseReasonCameraOff); err != nil && !errors.Is(err, ErrNotRecording) {
			return err
		}
	}
	return nil
}

// Close tears the recorder down, releasing the device, timers and preview.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	phase := r.phase
	active := r.active
	finalizing := r.finalizing
	if phase == domain.PhaseCountingDown {
		r.stopTimerLocked()
		r.phase = domain.PhaseIdle
		r.gen++
	}
	r.mu.Unlock()

	if phase == domain.PhaseRecording && active != nil {
		if !finalizing {
			if _, err := r.finish(domain.PhaseReasonCameraOff); err != nil && !errors.Is(err, ErrNotRecording) {
				r.log.WithError(err).Warn("failed to stop recording on close")
			}
		}
		// Whoever won the race to finalize closes this.
		<-active.finalized
	}

	r.mu.Lock()
	r.resetLocked()
	r.mu.Unlock()
	return nil
}

// Status returns a snapshot for the UI.
func (r *Recorder) Status() domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.Status{
		Phase:              r.phase,
		Permission:         r.gate.State(),
		CameraOn:           r.cameraOn,
		CountdownRemaining: r.countdown,
		ElapsedSeconds:     r.elapsed,
		MaxSeconds:         domain.MaxRecordingSeconds,
		Chunks:             len(r.chunks),
		HasRecording:       r.blob != nil,
		PreviewURL:         r.preview.URL(),
		SelectedDevice:     r.gate.SelectedDevice(),
		Resolution:         r.gate.Resolution(),
		Devices:            r.gate.Devices(),
	}
}

func (r *Recorder) countdownTick(t *intervalTimer) bool {
	r.mu.Lock()
	if r.timer != t || r.phase != domain.PhaseCountingDown {
		r.mu.Unlock()
		return false
	}
	r.countdown--
	remaining := r.countdown
	if remaining > 0 {
		r.mu.Unlock()
		r.events.CountdownTick(remaining)
		return true
	}
	r.stopTimerLocked()
	ctx := r.sessionCtx
	gen := r.gen
	starting := make(chan struct{})
	r.starting = starting
	r.mu.Unlock()

	r.events.CountdownTick(0)
	r.beginRecording(ctx, gen, starting)
	return false
}

func (r *Recorder) beginRecording(ctx context.Context, gen uint64, starting chan struct{}) {
	defer func() {
		r.mu.Lock()
		if r.starting == starting {
			r.starting = nil
		}
		r.mu.Unlock()
		close(starting)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	cfg := ports.CaptureConfig{
		DeviceID:    r.gate.SelectedDevice(),
		InputFormat: r.cfg.InputFormat,
		Resolution:  r.gate.Resolution(),
		FrameRate:   r.cfg.FrameRate,
	}

	captureCtx, cancel := context.WithCancel(ctx)
	session, err := r.capture.Start(captureCtx, cfg)
	if err != nil {
		cancel()
		r.abortCapture(gen, err)
		return
	}

	r.mu.Lock()
	if r.gen != gen || r.phase != domain.PhaseCountingDown || r.closed {
		r.mu.Unlock()
		if closeErr := session.Close(); closeErr != nil {
			r.log.WithError(closeErr).Warn("failed to release superseded capture")
		}
		cancel()
		return
	}
	active := &activeCapture{
		session:   session,
		cancel:    cancel,
		pumpDone:  make(chan struct{}),
		finalized: make(chan struct{}),
	}
	r.active = active
	r.phase = domain.PhaseRecording
	r.countdown = 0
	r.elapsed = 0
	r.chunks = nil
	r.timer = startInterval(r.clock, r.cfg.Tick, r.recordingTick)
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"device":     cfg.DeviceID,
		"resolution": fmt.Sprintf("%dx%d", cfg.Resolution.Width, cfg.Resolution.Height),
	}).Info("recording started")
	r.events.PhaseChanged(domain.PhaseRecording, domain.PhaseReasonRecordingStarted)
	r.events.RecordingTick(0, domain.MaxRecordingSeconds)

	// Started after the events so a lost capture is always reported last.
	go r.pump(active)
}

func (r *Recorder) abortCapture(gen uint64, err error) {
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.resetLocked()
	r.mu.Unlock()

	r.log.WithError(err).Warn("capture failed to start")
	if domain.IsPermissionError(err) {
		r.gate.MarkDenied()
		r.events.SessionError(domain.ErrorCodePermission, err.Error())
	} else {
		r.events.SessionError(domain.ErrorCodeCapture, err.Error())
	}
	r.events.PhaseChanged(domain.PhaseIdle, domain.PhaseReasonCaptureFailed)
}

func (r *Recorder) recordingTick(t *intervalTimer) bool {
	r.mu.Lock()
	if r.timer != t || r.phase != domain.PhaseRecording || r.finalizing {
		r.mu.Unlock()
		return false
	}
	r.elapsed++
	elapsed := r.elapsed
	r.mu.Unlock()

	r.events.RecordingTick(elapsed, domain.MaxRecordingSeconds)
	if elapsed >= domain.MaxRecordingSeconds {
		if _, err := r.finish(domain.PhaseReasonStoppedAtCap); err != nil && !errors.Is(err, ErrNotRecording) {
			r.log.WithError(err).Warn("auto-stop failed")
		}
		return false
	}
	return true
}

func (r *Recorder) pump(active *activeCapture) {
	if err := r.drain(active); err != nil {
		r.captureLost(active, err)
	}
}

// drain copies fragments until the stream ends. A clean end returns nil.
func (r *Recorder) drain(active *activeCapture) error {
	defer close(active.pumpDone)

	buf := make([]byte, r.cfg.ChunkSize)
	for {
		n, err := active.session.Read(buf)
		if n > 0 {
			fragment := append([]byte(nil), buf[:n]...)
			r.mu.Lock()
			if r.active == active {
				r.chunks = append(r.chunks, fragment)
			}
			r.mu.Unlock()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// captureLost tears down a recording whose device failed mid-session. The
// partial clip is discarded and the recorder returns to idle.
func (r *Recorder) captureLost(active *activeCapture, err error) {
	r.mu.Lock()
	if r.active != active || r.finalizing {
		r.mu.Unlock()
		r.log.WithError(err).Debug("capture error while finalizing")
		return
	}
	r.finalizing = true
	r.stopTimerLocked()
	r.mu.Unlock()

	_ = active.session.Stop()
	if closeErr := active.session.Close(); closeErr != nil {
		r.log.WithError(closeErr).Warn("failed to release lost capture")
	}
	active.cancel()

	r.mu.Lock()
	r.active = nil
	r.finalizing = false
	r.resetLocked()
	r.mu.Unlock()
	close(active.finalized)

	r.log.WithError(err).Warn("capture lost during recording")
	if domain.IsPermissionError(err) {
		r.gate.MarkDenied()
		r.events.SessionError(domain.ErrorCodePermission, err.Error())
	} else {
		r.events.SessionError(domain.ErrorCodeCapture, fmt.Sprintf("capture error: %v", err))
	}
	r.events.PhaseChanged(domain.PhaseIdle, domain.PhaseReasonCaptureLost)
}

// finish stops the capture, drains pending fragments and finalizes the clip.
func (r *Recorder) finish(reason domain.PhaseReason) (domain.Blob, error) {
	r.mu.Lock()
	if r.phase != domain.PhaseRecording || r.finalizing || r.active == nil {
		r.mu.Unlock()
		return domain.Blob{}, ErrNotRecording
	}
	r.finalizing = true
	active := r.active
	r.stopTimerLocked()
	r.mu.Unlock()

	stopErr := active.session.Stop()
	<-active.pumpDone
	if closeErr := active.session.Close(); closeErr != nil && stopErr == nil {
		stopErr = closeErr
	}
	active.cancel()
	if stopErr != nil {
		r.log.WithError(stopErr).Warn("capture did not stop cleanly")
		r.events.SessionError(domain.ErrorCodeCaptureEnd, "failed to stop capture cleanly")
	}

	r.mu.Lock()
	blob := domain.Blob{
		Data:      bytes.Join(r.chunks, nil),
		MediaType: domain.MediaTypeWebM,
		Seconds:   r.elapsed,
	}
	r.blob = &blob
	r.active = nil
	r.finalizing = false
	r.phase = domain.PhaseStopped
	r.elapsed = 0
	if _, err := r.preview.Replace(blob); err != nil {
		r.log.WithError(err).Warn("failed to build preview")
	}
	r.mu.Unlock()
	close(active.finalized)

	r.log.WithFields(logrus.Fields{
		"bytes":   blob.Size(),
		"seconds": blob.Seconds,
		"reason":  reason,
	}).Info("recording finalized")
	r.events.PhaseChanged(domain.PhaseStopped, reason)
	return blob, nil
}

// resetLocked returns to idle and discards the clip. Callers hold r.mu and
// must not have an active capture.
func (r *Recorder) resetLocked() {
	r.stopTimerLocked()
	r.phase = domain.PhaseIdle
	r.countdown = 0
	r.elapsed = 0
	r.chunks = nil
	r.blob = nil
	r.preview.Release()
	r.gen++
}

func (r *Recorder) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
