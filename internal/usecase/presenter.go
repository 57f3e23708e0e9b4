package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/lo"

	"signscribe/internal/domain"
	"signscribe/internal/ports"
)

var ErrNoResult = errors.New("no detection result to act on")

// ResultPresenter owns the result slot: nothing, pending, a result or an error.
type ResultPresenter struct {
	clipboard ports.Clipboard
	speaker   ports.Speaker
	events    ports.EventSink

	mu        sync.Mutex
	slot      domain.ResultSlot
	result    *domain.DetectionResult
	err       *domain.DetectionError
	modelSize domain.ModelSize
}

func NewResultPresenter(clipboard ports.Clipboard, speaker ports.Speaker, events ports.EventSink) *ResultPresenter {
	return &ResultPresenter{
		clipboard: clipboard,
		speaker:   speaker,
		events:    events,
		slot:      domain.ResultSlotNone,
	}
}

// ShowPending marks a submission in progress with the given model size.
func (p *ResultPresenter) ShowPending(size domain.ModelSize) {
	p.update(func() {
		p.slot = domain.ResultSlotPending
		p.modelSize = size
	})
}

// ShowResult replaces the slot with a new result.
func (p *ResultPresenter) ShowResult(result domain.DetectionResult) {
	p.update(func() {
		p.slot = domain.ResultSlotResult
		p.result = &result
		p.err = nil
	})
}

// ShowError replaces the slot with a failure.
func (p *ResultPresenter) ShowError(err error) {
	var detectionErr *domain.DetectionError
	if !errors.As(err, &detectionErr) {
		detectionErr = &domain.DetectionError{Message: err.Error(), Err: err}
	}
	p.update(func() {
		p.slot = domain.ResultSlotError
		p.result = nil
		p.err = detectionErr
	})
}

// Clear empties the slot.
func (p *ResultPresenter) Clear() {
	p.update(func() {
		p.slot = domain.ResultSlotNone
		p.result = nil
		p.err = nil
	})
}

// View renders the current slot.
func (p *ResultPresenter) View() domain.ResultView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

// Copy puts the detected text on the clipboard.
func (p *ResultPresenter) Copy(ctx context.Context) error {
	result, err := p.current()
	if err != nil {
		return err
	}
	return p.clipboard.SetText(ctx, result.Text)
}

// Speak reads the detected text aloud.
func (p *ResultPresenter) Speak(ctx context.Context) error {
	result, err := p.current()
	if err != nil {
		return err
	}
	return p.speaker.Speak(ctx, result.Text)
}

// Share copies a shareable summary of the detection and returns it.
func (p *ResultPresenter) Share(ctx context.Context) (string, error) {
	result, err := p.current()
	if err != nil {
		return "", err
	}
	text := domain.ShareText(result.Text, result.Confidence)
	if err := p.clipboard.SetText(ctx, text); err != nil {
		return "", err
	}
	return text, nil
}

func (p *ResultPresenter) current() (domain.DetectionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.slot != domain.ResultSlotResult || p.result == nil {
		return domain.DetectionResult{}, ErrNoResult
	}
	return *p.result, nil
}

func (p *ResultPresenter) update(fn func()) {
	p.mu.Lock()
	fn()
	view := p.viewLocked()
	p.mu.Unlock()

	p.events.ResultChanged(view)
}

func (p *ResultPresenter) viewLocked() domain.ResultView {
	switch p.slot {
	case domain.ResultSlotPending:
		return domain.ResultView{Slot: domain.ResultSlotPending, ModelSize: p.modelSize}
	case domain.ResultSlotError:
		return domain.ResultView{Slot: domain.ResultSlotError, ErrorMessage: p.err.Message}
	case domain.ResultSlotResult:
		view := domain.ResultView{
			Slot:    domain.ResultSlotResult,
			Text:    p.result.Text,
			Percent: domain.ConfidencePercent(p.result.Confidence),
			Alternatives: lo.Map(
				lo.Slice(p.result.Alternatives, 0, domain.MaxAlternatives),
				func(alt domain.Alternative, _ int) domain.AlternativeView {
					return domain.AlternativeView{Text: alt.Text, Percent: domain.ConfidencePercent(alt.Confidence)}
				},
			),
		}
		if p.result.ModelInfo != nil {
			view.Model = p.result.ModelInfo.ModelSize
			view.Device = p.result.ModelInfo.Device
		}
		return view
	default:
		return domain.ResultView{Slot: domain.ResultSlotNone}
	}
}
