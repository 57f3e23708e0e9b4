package detection

import (
	"math"
	"strings"

	"github.com/samber/lo"

	"signscribe/internal/domain"
)

type wireAlternative struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type wireModelInfo struct {
	ModelSize  string `json:"model_size"`
	NumClasses int    `json:"num_classes"`
	Device     string `json:"device"`
}

// wireResult is the loosely typed body of one detection. It is turned into a
// result or a typed error here and nowhere else.
type wireResult struct {
	Text         *string           `json:"text"`
	Confidence   *float64          `json:"confidence"`
	Alternatives []wireAlternative `json:"alternatives"`
	ModelInfo    *wireModelInfo    `json:"model_info"`
	Filename     string            `json:"filename"`
	Error        string            `json:"error"`
}

func (w wireResult) toResult(status int) (domain.DetectionResult, *domain.DetectionError) {
	if message := strings.TrimSpace(w.Error); message != "" {
		return domain.DetectionResult{}, &domain.DetectionError{Kind: domain.KindHTTPFailure, Status: status, Message: message}
	}
	if w.Text == nil || w.Confidence == nil {
		return domain.DetectionResult{}, &domain.DetectionError{
			Kind:    domain.KindParseFailure,
			Message: "detection response is missing text or confidence",
		}
	}
	confidence := *w.Confidence
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return domain.DetectionResult{}, &domain.DetectionError{
			Kind:    domain.KindParseFailure,
			Message: "detection confidence is outside [0,1]",
		}
	}

	result := domain.DetectionResult{
		Text:       *w.Text,
		Confidence: confidence,
		Alternatives: lo.Map(w.Alternatives, func(alt wireAlternative, _ int) domain.Alternative {
			return domain.Alternative{Text: alt.Text, Confidence: alt.Confidence}
		}),
	}
	if w.ModelInfo != nil {
		result.ModelInfo = &domain.ModelInfo{
			ModelSize:  w.ModelInfo.ModelSize,
			NumClasses: w.ModelInfo.NumClasses,
			Device:     w.ModelInfo.Device,
		}
	}
	return result, nil
}

type wireBatch struct {
	Results    []wireResult `json:"results"`
	TotalFiles int          `json:"total_files"`
}

// toBatch maps every returned item independently. Files the server did not
// report on count as failed; the success count is recomputed from the items.
func (w wireBatch) toBatch(status int, submitted int) domain.BatchResult {
	items := make([]domain.BatchItem, 0, len(w.Results))
	for index, wire := range w.Results {
		item := domain.BatchItem{Index: index, Filename: wire.Filename}
		result, err := wire.toResult(status)
		if err != nil {
			item.Err = err
		} else {
			item.Result = &result
		}
		items = append(items, item)
	}

	total := w.TotalFiles
	if total < submitted {
		total = submitted
	}
	for len(items) < total {
		items = append(items, domain.BatchItem{
			Index: len(items),
			Err: &domain.DetectionError{
				Kind:    domain.KindParseFailure,
				Message: "no result returned for file",
			},
		})
	}

	return domain.BatchResult{
		Items:                items,
		TotalFiles:           total,
		SuccessfulDetections: lo.CountBy(items, domain.BatchItem.Succeeded),
	}
}
