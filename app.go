package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/samber/lo"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"signscribe/internal/bootstrap"
	"signscribe/internal/config"
	"signscribe/internal/domain"
	"signscribe/internal/preview"
	"signscribe/internal/usecase"
)

const (
	eventPhase      = "signscribe:phase"
	eventCountdown  = "signscribe:countdown"
	eventRecording  = "signscribe:recording"
	eventPermission = "signscribe:permission"
	eventPreview    = "signscribe:preview"
	eventResult     = "signscribe:result"
	eventError      = "signscribe:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	previews *preview.Registry
	services bootstrap.Services
	ready    bool
	bootErr  error
}

// ModelSizeOption is one entry of the model selector.
type ModelSizeOption struct {
	Value       domain.ModelSize `json:"value"`
	Description string           `json:"description"`
}

func NewApp() *App {
	return &App{previews: preview.NewRegistry()}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, &wailsClipboard{}, a.previews)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.ready = true
	a.PhaseChanged(domain.PhaseIdle, domain.PhaseReasonReady)

	services.Gate.Probe(ctx)
	go services.Submitter.RefreshServer(ctx)
}

func (a *App) shutdown(_ context.Context) {
	if !a.ready {
		return
	}
	if err := a.services.Close(); err != nil {
		a.services.Logger.WithError(err).Warn("shutdown failed")
	}
}

// RetryPermission probes the camera again after a denial.
func (a *App) RetryPermission() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.services.Gate.Retry(a.ctx)
	return a.GetStatus(), nil
}

// SelectDevice picks the camera used by the next recording.
func (a *App) SelectDevice(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Gate.SelectDevice(id)
}

// SetResolution accepts "720p" or "1280x720".
func (a *App) SetResolution(value string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	res, err := config.ParseResolution(value)
	if err != nil {
		return err
	}
	return a.services.Gate.SetResolution(res)
}

// SetCamera turns the camera on or off.
func (a *App) SetCamera(on bool) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Recorder.SetCamera(on); err != nil {
		a.SessionError(domain.ErrorCodeCapture, err.Error())
		return domain.Status{}, err
	}
	return a.GetStatus(), nil
}

// StartRecording begins the countdown.
func (a *App) StartRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Recorder.Start(a.ctx); err != nil {
		return domain.Status{}, err
	}
	return a.GetStatus(), nil
}

// StopRecording finalizes the clip early.
func (a *App) StopRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if _, err := a.services.Recorder.Stop(); err != nil && !errors.Is(err, usecase.ErrNotRecording) {
		return domain.Status{}, err
	}
	return a.GetStatus(), nil
}

// Retake discards the clip.
func (a *App) Retake() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Recorder.Retake()
}

// Submit sends the recorded clip for detection.
func (a *App) Submit() (domain.ResultView, error) {
	if err := a.requireReady(); err != nil {
		return domain.ResultView{}, err
	}
	if _, err := a.services.Submitter.Submit(a.ctx); err != nil {
		return a.services.Presenter.View(), err
	}
	return a.services.Presenter.View(), nil
}

// ChooseVideos opens a file dialog and submits the chosen videos. One file
// goes to single detection, several to batch detection.
func (a *App) ChooseVideos() (domain.BatchResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.BatchResult{}, err
	}
	paths, err := runtime.OpenMultipleFilesDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Choose sign videos",
		Filters: []runtime.FileFilter{{
			DisplayName: "Videos",
			Pattern:     "*.webm;*.mp4;*.mov;*.avi;*.mkv",
		}},
	})
	if err != nil {
		return domain.BatchResult{}, err
	}
	return a.SubmitFiles(paths)
}

// SubmitFiles submits videos from disk.
func (a *App) SubmitFiles(paths []string) (domain.BatchResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.BatchResult{}, err
	}
	switch len(paths) {
	case 0:
		return domain.BatchResult{}, usecase.ErrNoFiles
	case 1:
		result, err := a.services.Submitter.SubmitFile(a.ctx, paths[0])
		if err != nil {
			return domain.BatchResult{}, err
		}
		return domain.BatchResult{
			Items:                []domain.BatchItem{{Index: 0, Filename: paths[0], Result: &result}},
			TotalFiles:           1,
			SuccessfulDetections: 1,
		}, nil
	default:
		return a.services.Submitter.SubmitBatch(a.ctx, paths)
	}
}

// SetModelSize switches the model used by later submissions.
func (a *App) SetModelSize(value string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Submitter.SetModelSize(value)
}

// GetModelSizes lists the selectable models.
func (a *App) GetModelSizes() []ModelSizeOption {
	return lo.Map(domain.ModelSizes(), func(size domain.ModelSize, _ int) ModelSizeOption {
		return ModelSizeOption{Value: size, Description: size.Description()}
	})
}

// CheckServer probes the detection service.
func (a *App) CheckServer() (domain.ServerState, error) {
	if err := a.requireReady(); err != nil {
		return domain.ServerOffline, err
	}
	return a.services.Submitter.RefreshServer(a.ctx), nil
}

// CopyResult copies the detected text.
func (a *App) CopyResult() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Presenter.Copy(a.ctx); err != nil {
		a.SessionError(domain.ErrorCodeClipboard, err.Error())
		return err
	}
	return nil
}

// SpeakResult reads the detected text aloud.
func (a *App) SpeakResult() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Presenter.Speak(a.ctx); err != nil {
		a.SessionError(domain.ErrorCodeSpeech, err.Error())
		return err
	}
	return nil
}

// ShareResult copies a shareable summary and returns it.
func (a *App) ShareResult() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	text, err := a.services.Presenter.Share(a.ctx)
	if err != nil {
		a.SessionError(domain.ErrorCodeClipboard, err.Error())
		return "", err
	}
	return text, nil
}

// GetResult returns the current result slot.
func (a *App) GetResult() domain.ResultView {
	if !a.ready {
		return domain.ResultView{Slot: domain.ResultSlotNone}
	}
	return a.services.Presenter.View()
}

// RecentDetections lists the user's newest detections.
func (a *App) RecentDetections() ([]domain.HistoryRecord, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	records, err := a.services.Submitter.RecentDetections(a.ctx)
	if err != nil {
		a.SessionError(domain.ErrorCodeHistory, err.Error())
		return nil, err
	}
	return records, nil
}

// DeleteDetection removes a history entry.
func (a *App) DeleteDetection(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Submitter.DeleteDetection(a.ctx, id); err != nil {
		a.SessionError(domain.ErrorCodeHistory, err.Error())
		return err
	}
	return nil
}

// GetStatus returns the current recorder status.
func (a *App) GetStatus() domain.Status {
	if !a.ready {
		return domain.Status{
			Phase:      domain.PhaseIdle,
			Permission: domain.PermissionUnknown,
			MaxSeconds: domain.MaxRecordingSeconds,
			Server:     domain.ServerChecking,
		}
	}
	status := a.services.Recorder.Status()
	status.Submitting = a.services.Submitter.Submitting()
	status.Server = a.services.Submitter.Server().State()
	status.ModelSize = a.services.Submitter.ModelSize()
	return status
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if !a.ready {
		return map[string]string{}
	}

	cfg := a.services.Config
	info := map[string]string{
		"apiBase":      cfg.API.BaseURL,
		"modelSize":    string(a.services.Submitter.ModelSize()),
		"videoInput":   cfg.Video.InputFormat,
		"videoDevice":  a.services.Gate.SelectedDevice(),
		"resolution":   fmt.Sprintf("%dx%d", cfg.Video.Resolution.Width, cfg.Video.Resolution.Height),
		"user":         cfg.History.UserName,
		"livePreviews": strconv.Itoa(a.previews.Live()),
	}
	addServerInfo(info, a.services.Submitter.Server())
	return info
}

// addServerInfo adds the last probe outcome for the server panel.
func addServerInfo(info map[string]string, server *usecase.ServerStatus) {
	info["server"] = string(server.State())
	model := server.ModelInfo()
	if model == nil {
		return
	}
	info["modelStatus"] = model.Status
	info["modelDirectory"] = model.ModelDirectory
	info["modelAvailable"] = strconv.FormatBool(model.ModelVenvAvailable)
	info["inferenceAvailable"] = strconv.FormatBool(model.InferenceScriptAvailable)
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if !a.ready {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// PhaseChanged emits recorder lifecycle updates to the frontend.
func (a *App) PhaseChanged(phase domain.Phase, reason domain.PhaseReason) {
	a.emit(eventPhase, map[string]string{
		"phase":   string(phase),
		"reason":  string(reason),
		"message": phaseReasonMessage(reason),
	})
}

func (a *App) CountdownTick(remaining int) {
	a.emit(eventCountdown, map[string]int{"remaining": remaining})
}

func (a *App) RecordingTick(elapsed int, max int) {
	a.emit(eventRecording, map[string]int{"elapsed": elapsed, "max": max})
}

func (a *App) PermissionChanged(state domain.PermissionState) {
	a.emit(eventPermission, map[string]string{"state": string(state)})
}

func (a *App) PreviewChanged(url string) {
	a.emit(eventPreview, map[string]string{"url": url})
}

func (a *App) ResultChanged(view domain.ResultView) {
	a.emit(eventResult, view)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

func phaseReasonMessage(reason domain.PhaseReason) string {
	switch reason {
	case domain.PhaseReasonReady:
		return "Ready to record"
	case domain.PhaseReasonCountdownStarted:
		return "Get ready..."
	case domain.PhaseReasonRecordingStarted:
		return "Recording"
	case domain.PhaseReasonStoppedByUser:
		return "Recording stopped"
	case domain.PhaseReasonStoppedAtCap:
		return "Recording reached the time limit"
	case domain.PhaseReasonCameraOff:
		return "Camera turned off"
	case domain.PhaseReasonRetake:
		return "Recording discarded"
	case domain.PhaseReasonSubmitted:
		return "Recording submitted"
	case domain.PhaseReasonCaptureFailed:
		return "Could not start the camera"
	case domain.PhaseReasonCaptureLost:
		return "The camera stopped during recording"
	case domain.PhaseReasonCountdownAborted:
		return "Countdown cancelled"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermission:
		return "Camera access denied. Please allow camera access."
	case domain.ErrorCodeCapture:
		return "Camera capture failed"
	case domain.ErrorCodeCaptureEnd:
		return "Camera stop issue"
	case domain.ErrorCodeSubmission:
		return "Failed to detect sign language"
	case domain.ErrorCodeHistory:
		return "Detection history unavailable"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	case domain.ErrorCodeSpeech:
		return "Speech playback failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
