package domain

import "time"

const (
	// CountdownSeconds is how long the recorder counts down before capture starts.
	CountdownSeconds = 3
	// MaxRecordingSeconds hard-caps every recording.
	MaxRecordingSeconds = 4
	// MaxAlternatives bounds the alternatives shown next to a result.
	MaxAlternatives = 3
	// RecentDetectionsLimit is the size of the recent detections list.
	RecentDetectionsLimit = 5

	MediaTypeWebM = "video/webm"
)

// Phase models the recording lifecycle.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseCountingDown Phase = "counting_down"
	PhaseRecording    Phase = "recording"
	PhaseStopped      Phase = "stopped"
)

// PhaseReason provides a structured reason for phase transitions.
type PhaseReason string

const (
	PhaseReasonReady            PhaseReason = "ready"
	PhaseReasonCountdownStarted PhaseReason = "countdown_started"
	PhaseReasonRecordingStarted PhaseReason = "recording_started"
	PhaseReasonStoppedByUser    PhaseReason = "stopped_by_user"
	PhaseReasonStoppedAtCap     PhaseReason = "stopped_at_cap"
	PhaseReasonCameraOff        PhaseReason = "camera_off"
	PhaseReasonRetake           PhaseReason = "retake"
	PhaseReasonSubmitted        PhaseReason = "submitted"
	PhaseReasonCaptureFailed    PhaseReason = "capture_failed"
	PhaseReasonCaptureLost      PhaseReason = "capture_lost"
	PhaseReasonCountdownAborted PhaseReason = "countdown_aborted"
)

// PermissionState is the outcome of probing the camera.
type PermissionState string

const (
	PermissionUnknown PermissionState = "unknown"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// ErrorCode identifies errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup    ErrorCode = "startup"
	ErrorCodePermission ErrorCode = "permission"
	ErrorCodeCapture    ErrorCode = "capture"
	ErrorCodeCaptureEnd ErrorCode = "capture_stop"
	ErrorCodeSubmission ErrorCode = "submission"
	ErrorCodeHistory    ErrorCode = "history"
	ErrorCodeClipboard  ErrorCode = "clipboard"
	ErrorCodeSpeech     ErrorCode = "speech"
)

// DeviceDescriptor names one video input device.
type DeviceDescriptor struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Resolution is a capture frame size.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

var (
	Resolution1080p = Resolution{Width: 1920, Height: 1080}
	Resolution720p  = Resolution{Width: 1280, Height: 720}
	Resolution480p  = Resolution{Width: 640, Height: 480}
	Resolution240p  = Resolution{Width: 320, Height: 240}
)

// SupportedResolutions lists the selectable frame sizes, largest first.
func SupportedResolutions() []Resolution {
	return []Resolution{Resolution1080p, Resolution720p, Resolution480p, Resolution240p}
}

// Blob is a finalized recording.
type Blob struct {
	Data      []byte `json:"-"`
	MediaType string `json:"mediaType"`
	// Seconds is the elapsed recording time when the blob was finalized.
	Seconds int `json:"seconds"`
}

func (b Blob) Size() int { return len(b.Data) }

// PreviewHandle is a local-only reference to a finalized blob.
type PreviewHandle struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Status summarizes the recorder for the UI.
type Status struct {
	Phase              Phase              `json:"phase"`
	Permission         PermissionState    `json:"permission"`
	CameraOn           bool               `json:"cameraOn"`
	CountdownRemaining int                `json:"countdownRemaining"`
	ElapsedSeconds     int                `json:"elapsedSeconds"`
	MaxSeconds         int                `json:"maxSeconds"`
	Chunks             int                `json:"chunks"`
	HasRecording       bool               `json:"hasRecording"`
	PreviewURL         string             `json:"previewUrl,omitempty"`
	SelectedDevice     string             `json:"selectedDevice,omitempty"`
	Resolution         Resolution         `json:"resolution"`
	Devices            []DeviceDescriptor `json:"devices,omitempty"`
	Submitting         bool               `json:"submitting"`
	Server             ServerState        `json:"server"`
	ModelSize          ModelSize          `json:"modelSize"`
}

// HistoryRecord is one persisted detection.
type HistoryRecord struct {
	ID           string        `json:"id"`
	UserID       string        `json:"userId"`
	DetectedText string        `json:"detectedText"`
	Confidence   float64       `json:"confidence"`
	Alternatives []Alternative `json:"alternatives"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// User is the identity detections are recorded against.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}
