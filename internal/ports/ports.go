package ports

import (
	"context"
	"io"
	"time"

	"signscribe/internal/domain"
)

// CaptureConfig describes how the camera should be captured.
type CaptureConfig struct {
	DeviceID    string
	InputFormat string
	Resolution  domain.Resolution
	FrameRate   int
}

// CaptureSession is a live recording. Read yields encoded media fragments
// until the session is stopped, then io.EOF.
type CaptureSession interface {
	io.ReadCloser
	Stop() error
}

// CaptureEngine creates camera capture sessions.
type CaptureEngine interface {
	Start(ctx context.Context, cfg CaptureConfig) (CaptureSession, error)
}

// MediaDevices probes and lists video input devices.
type MediaDevices interface {
	// Open acquires a device exclusively. An empty id means the default device.
	Open(ctx context.Context, deviceID string) (io.Closer, error)
	List(ctx context.Context) ([]domain.DeviceDescriptor, error)
}

// Ticker delivers interval ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// DetectionClient talks to the remote detection service.
type DetectionClient interface {
	Detect(ctx context.Context, blob domain.Blob, size domain.ModelSize) (domain.DetectionResult, error)
	DetectBatch(ctx context.Context, blobs []domain.Blob, size domain.ModelSize) (domain.BatchResult, error)
	Health(ctx context.Context) (domain.ServerHealth, error)
	ModelInfo(ctx context.Context) (domain.ServerModelInfo, error)
}

// HistoryStore persists detections per user.
type HistoryStore interface {
	Save(ctx context.Context, record domain.HistoryRecord) (domain.HistoryRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.HistoryRecord, error)
	Delete(ctx context.Context, id string) error
}

// PreviewStore hands out local references to finalized blobs.
type PreviewStore interface {
	Create(blob domain.Blob) (domain.PreviewHandle, error)
	Revoke(id string)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// Speaker reads text aloud.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	PhaseChanged(phase domain.Phase, reason domain.PhaseReason)
	CountdownTick(remaining int)
	RecordingTick(elapsed int, max int)
	PermissionChanged(state domain.PermissionState)
	PreviewChanged(url string)
	ResultChanged(view domain.ResultView)
	SessionError(code domain.ErrorCode, detail string)
}
