package domain

import (
	"fmt"
	"math"
	"strconv"
)

// ModelSize selects the vocabulary of the detection model.
type ModelSize string

const (
	ModelSize100  ModelSize = "100"
	ModelSize300  ModelSize = "300"
	ModelSize1000 ModelSize = "1000"
	ModelSize2000 ModelSize = "2000"

	DefaultModelSize = ModelSize2000
)

// ModelSizes lists the accepted sizes, smallest first.
func ModelSizes() []ModelSize {
	return []ModelSize{ModelSize100, ModelSize300, ModelSize1000, ModelSize2000}
}

// ParseModelSize validates a model size selector.
func ParseModelSize(value string) (ModelSize, error) {
	for _, size := range ModelSizes() {
		if string(size) == value {
			return size, nil
		}
	}
	return "", fmt.Errorf("invalid model size %q", value)
}

// Description returns the human label used by the model selector.
func (s ModelSize) Description() string {
	switch s {
	case ModelSize100:
		return "Top 100 most common ASL words"
	case ModelSize300:
		return "Top 300 most common ASL words"
	case ModelSize1000:
		return "Top 1000 most common ASL words"
	case ModelSize2000:
		return "Full dataset with 2000 ASL words"
	default:
		return ""
	}
}

// Alternative is a secondary prediction.
type Alternative struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// ModelInfo describes the model that served a detection.
type ModelInfo struct {
	ModelSize  string `json:"modelSize"`
	NumClasses int    `json:"numClasses,omitempty"`
	Device     string `json:"device"`
}

// DetectionResult is an immutable detection outcome.
type DetectionResult struct {
	Text         string        `json:"text"`
	Confidence   float64       `json:"confidence"`
	Alternatives []Alternative `json:"alternatives"`
	ModelInfo    *ModelInfo    `json:"modelInfo,omitempty"`
}

// ConfidencePercent renders a [0,1] confidence as a rounded percentage.
func ConfidencePercent(confidence float64) int {
	return int(math.Round(confidence * 100))
}

// BatchItem is the outcome for one file of a batch submission.
type BatchItem struct {
	Index    int              `json:"index"`
	Filename string           `json:"filename,omitempty"`
	Result   *DetectionResult `json:"result,omitempty"`
	Err      *DetectionError  `json:"error,omitempty"`
}

func (i BatchItem) Succeeded() bool { return i.Result != nil && i.Err == nil }

// BatchResult aggregates a batch submission.
type BatchResult struct {
	Items                []BatchItem `json:"items"`
	TotalFiles           int         `json:"totalFiles"`
	SuccessfulDetections int         `json:"successfulDetections"`
}

// ServerState is the advisory availability of the detection service.
type ServerState string

const (
	ServerChecking ServerState = "checking"
	ServerOnline   ServerState = "online"
	ServerOffline  ServerState = "offline"
)

// ServerHealth is the body of the health probe.
type ServerHealth struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ServerModelInfo is the body of the model-info probe.
type ServerModelInfo struct {
	ModelVenvAvailable       bool   `json:"modelVenvAvailable"`
	InferenceScriptAvailable bool   `json:"inferenceScriptAvailable"`
	ModelDirectory           string `json:"modelDirectory"`
	Status                   string `json:"status"`
}

// ResultSlot names what the result area currently shows.
type ResultSlot string

const (
	ResultSlotNone    ResultSlot = "none"
	ResultSlotPending ResultSlot = "pending"
	ResultSlotResult  ResultSlot = "result"
	ResultSlotError   ResultSlot = "error"
)

// AlternativeView is an alternative prepared for display.
type AlternativeView struct {
	Text    string `json:"text"`
	Percent int    `json:"percent"`
}

// ResultView is what the result area renders.
type ResultView struct {
	Slot         ResultSlot        `json:"slot"`
	Text         string            `json:"text,omitempty"`
	Percent      int               `json:"percent,omitempty"`
	Alternatives []AlternativeView `json:"alternatives,omitempty"`
	Model        string            `json:"model,omitempty"`
	Device       string            `json:"device,omitempty"`
	ModelSize    ModelSize         `json:"modelSize,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
}

// ShareText is the text used when sharing a detection.
func ShareText(text string, confidence float64) string {
	return "Detected: \"" + text + "\" with " + strconv.Itoa(ConfidencePercent(confidence)) + "% confidence"
}
