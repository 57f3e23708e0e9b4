package bootstrap

import (
	"github.com/sirupsen/logrus"

	"signscribe/internal/config"
	"signscribe/internal/domain"
	"signscribe/internal/history"
	"signscribe/internal/logger"
	"signscribe/internal/ports"
	"signscribe/internal/preview"
	"signscribe/internal/providers/detection"
	"signscribe/internal/speech"
	"signscribe/internal/usecase"
	"signscribe/internal/video"
)

// Services is the assembled runtime graph.
type Services struct {
	Gate      *usecase.PermissionGate
	Recorder  *usecase.Recorder
	Presenter *usecase.ResultPresenter
	Submitter *usecase.Submitter
	Previews  *preview.Registry
	History   *history.SQLiteStore
	Config    config.Config
	Logger    *logrus.Logger
}

// Build wires all backend dependencies for the current runtime. A history
// database that cannot be opened disables history instead of failing. The
// preview registry may be created up front so the asset server can serve it.
func Build(eventSink ports.EventSink, clipboard ports.Clipboard, previews *preview.Registry) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	log := logger.New()

	var historyStore ports.HistoryStore
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		log.WithError(err).WithField("path", cfg.History.Path).Warn("detection history disabled")
	} else {
		historyStore = store
	}

	env := usecase.Environment{
		User:   domain.User{ID: cfg.History.UserID, Name: cfg.History.UserName},
		Server: usecase.NewServerStatus(),
	}
	if previews == nil {
		previews = preview.NewRegistry()
	}

	gate := usecase.NewPermissionGate(video.NewV4L2Devices(), eventSink, log, cfg.Video.Device, cfg.Video.Resolution)
	recorder := usecase.NewRecorder(
		video.NewFFMPEGCapture(cfg.Video.RecorderCommand),
		gate,
		previews,
		usecase.SystemClock{},
		eventSink,
		log,
		usecase.RecorderConfig{
			InputFormat: cfg.Video.InputFormat,
			FrameRate:   cfg.Video.FrameRate,
			ChunkSize:   cfg.Session.ChunkSize,
		},
	)
	presenter := usecase.NewResultPresenter(clipboard, speech.NewCommandSpeaker(cfg.Speech.Command), eventSink)
	submitter := usecase.NewSubmitter(
		detection.NewClient(detection.Config{BaseURL: cfg.API.BaseURL, Timeout: cfg.API.Timeout}),
		recorder,
		presenter,
		historyStore,
		env,
		eventSink,
		log,
		cfg.API.ModelSize,
	)

	return Services{
		Gate:      gate,
		Recorder:  recorder,
		Presenter: presenter,
		Submitter: submitter,
		Previews:  previews,
		History:   store,
		Config:    cfg,
		Logger:    log,
	}, nil
}

// Close releases the recorder and the history database.
func (s Services) Close() error {
	if s.Recorder != nil {
		_ = s.Recorder.Close()
	}
	if s.History != nil {
		return s.History.Close()
	}
	return nil
}
