package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"signscribe/internal/domain"
	"signscribe/internal/ports"
)

// MaxUploadBytes bounds files submitted from disk.
const MaxUploadBytes = 50 << 20

var (
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrServerOffline      = errors.New("detection server is offline")
	ErrEmptyRecording     = errors.New("recording is empty")
	ErrNotVideo           = errors.New("file is not a video")
	ErrFileTooLarge       = errors.New("file is too large")
	ErrNoFiles            = errors.New("no files to submit")
	ErrHistoryDisabled    = errors.New("detection history is not available")
)

// Submitter hands finalized clips to the detection service and routes the
// outcome to the presenter and the history store.
type Submitter struct {
	client    ports.DetectionClient
	recorder  *Recorder
	presenter *ResultPresenter
	history   ports.HistoryStore
	env       Environment
	events    ports.EventSink
	log       logrus.FieldLogger

	mu        sync.Mutex
	inFlight  bool
	modelSize domain.ModelSize
}

func NewSubmitter(
	client ports.DetectionClient,
	recorder *Recorder,
	presenter *ResultPresenter,
	history ports.HistoryStore,
	env Environment,
	events ports.EventSink,
	log logrus.FieldLogger,
	modelSize domain.ModelSize,
) *Submitter {
	if _, err := domain.ParseModelSize(string(modelSize)); err != nil {
		modelSize = domain.DefaultModelSize
	}
	if env.Server == nil {
		env.Server = NewServerStatus()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Submitter{
		client:    client,
		recorder:  recorder,
		presenter: presenter,
		history:   history,
		env:       env,
		events:    events,
		log:       log.WithField("component", "submitter"),
		modelSize: modelSize,
	}
}

// Submit sends the recorder's finalized clip. On success the recorder returns
// to idle; on failure the clip stays available for another attempt.
func (s *Submitter) Submit(ctx context.Context) (domain.DetectionResult, error) {
	blob, token, err := s.recorder.Finalized()
	if err != nil {
		return domain.DetectionResult{}, err
	}
	if blob.Size() == 0 {
		return domain.DetectionResult{}, ErrEmptyRecording
	}

	result, err := s.detect(ctx, blob)
	if err != nil {
		return domain.DetectionResult{}, err
	}
	s.recorder.CompleteSubmission(token)
	return result, nil
}

// SubmitFile sends a video file from disk without touching the recorder.
func (s *Submitter) SubmitFile(ctx context.Context, path string) (domain.DetectionResult, error) {
	blob, err := loadVideo(path)
	if err != nil {
		return domain.DetectionResult{}, err
	}
	return s.detect(ctx, blob)
}

// SubmitBatch sends several video files in one request. Items fail
// independently; only transport and request-level failures return an error.
func (s *Submitter) SubmitBatch(ctx context.Context, paths []string) (domain.BatchResult, error) {
	if len(paths) == 0 {
		return domain.BatchResult{}, ErrNoFiles
	}
	blobs := make([]domain.Blob, 0, len(paths))
	for _, path := range paths {
		blob, err := loadVideo(path)
		if err != nil {
			return domain.BatchResult{}, err
		}
		blobs = append(blobs, blob)
	}

	if err := s.begin(); err != nil {
		return domain.BatchResult{}, err
	}
	defer s.end()

	size := s.ModelSize()
	batch, err := s.client.DetectBatch(ctx, blobs, size)
	if err != nil {
		s.log.WithError(err).Warn("batch detection failed")
		s.events.SessionError(domain.ErrorCodeSubmission, err.Error())
		return domain.BatchResult{}, err
	}

	for _, item := range batch.Items {
		if item.Succeeded() {
			s.persist(ctx, *item.Result)
		}
	}
	s.log.WithFields(logrus.Fields{
		"total":      batch.TotalFiles,
		"successful": batch.SuccessfulDetections,
	}).Info("batch detection completed")
	return batch, nil
}

// RefreshServer probes health and model info. Failures only mark the server
// offline.
func (s *Submitter) RefreshServer(ctx context.Context) domain.ServerState {
	if _, err := s.client.Health(ctx); err != nil {
		s.log.WithError(err).Debug("health probe failed")
		s.env.Server.set(domain.ServerOffline, nil)
		return domain.ServerOffline
	}

	info, err := s.client.ModelInfo(ctx)
	if err != nil {
		s.log.WithError(err).Debug("model info probe failed")
		s.env.Server.set(domain.ServerOnline, nil)
		return domain.ServerOnline
	}
	s.env.Server.set(domain.ServerOnline, &info)
	return domain.ServerOnline
}

// RecentDetections lists the newest detections of the current user.
func (s *Submitter) RecentDetections(ctx context.Context) ([]domain.HistoryRecord, error) {
	if s.history == nil || s.env.User.ID == "" {
		return nil, ErrHistoryDisabled
	}
	return s.history.ListByUser(ctx, s.env.User.ID, domain.RecentDetectionsLimit)
}

// DeleteDetection removes one history record.
func (s *Submitter) DeleteDetection(ctx context.Context, id string) error {
	if s.history == nil {
		return ErrHistoryDisabled
	}
	return s.history.Delete(ctx, id)
}

func (s *Submitter) SetModelSize(value string) error {
	size, err := domain.ParseModelSize(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrSubmissionInFlight
	}
	s.modelSize = size
	return nil
}

func (s *Submitter) ModelSize() domain.ModelSize {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelSize
}

// Submitting reports whether a request is outstanding.
func (s *Submitter) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Submitter) Server() *ServerStatus {
	return s.env.Server
}

func (s *Submitter) detect(ctx context.Context, blob domain.Blob) (domain.DetectionResult, error) {
	if s.env.Server.State() == domain.ServerOffline {
		s.events.SessionError(domain.ErrorCodeSubmission, ErrServerOffline.Error())
		return domain.DetectionResult{}, ErrServerOffline
	}
	if err := s.begin(); err != nil {
		return domain.DetectionResult{}, err
	}
	defer s.end()

	size := s.ModelSize()
	s.presenter.ShowPending(size)

	result, err := s.client.Detect(ctx, blob, size)
	if err != nil {
		s.log.WithError(err).WithField("kind", domain.ErrorKindOf(err)).Warn("detection failed")
		s.presenter.ShowError(err)
		s.events.SessionError(domain.ErrorCodeSubmission, err.Error())
		return domain.DetectionResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"text":       result.Text,
		"confidence": result.Confidence,
		"model_size": size,
	}).Info("detection received")
	s.presenter.ShowResult(result)
	s.persist(ctx, result)
	return result, nil
}

func (s *Submitter) persist(ctx context.Context, result domain.DetectionResult) {
	if s.history == nil || s.env.User.ID == "" {
		return
	}
	_, err := s.history.Save(ctx, domain.HistoryRecord{
		UserID:       s.env.User.ID,
		DetectedText: result.Text,
		Confidence:   result.Confidence,
		Alternatives: result.Alternatives,
	})
	if err != nil {
		s.log.WithError(err).Warn("failed to save detection history")
	}
}

func (s *Submitter) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrSubmissionInFlight
	}
	s.inFlight = true
	return nil
}

func (s *Submitter) end() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

func loadVideo(path string) (domain.Blob, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.Blob{}, fmt.Errorf("failed to read %q: %w", path, err)
	}
	if info.Size() > MaxUploadBytes {
		return domain.Blob{}, fmt.Errorf("%w: %s", ErrFileTooLarge, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Blob{}, fmt.Errorf("failed to read %q: %w", path, err)
	}
	if len(data) == 0 {
		return domain.Blob{}, fmt.Errorf("%w: %s", ErrEmptyRecording, path)
	}

	detected := mimetype.Detect(data)
	mediaType, _, _ := strings.Cut(detected.String(), ";")
	if !strings.HasPrefix(mediaType, "video/") {
		return domain.Blob{}, fmt.Errorf("%w: %s is %s", ErrNotVideo, path, mediaType)
	}
	return domain.Blob{Data: data, MediaType: mediaType}, nil
}
