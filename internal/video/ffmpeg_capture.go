package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"signscribe/internal/domain"
	"signscribe/internal/ports"
)

const (
	DefaultInputFormat = "v4l2"
	DefaultDevice      = "/dev/video0"
	DefaultFrameRate   = 30

	startupGrace = 250 * time.Millisecond
	stopTimeout  = 1200 * time.Millisecond
	drainGrace   = 500 * time.Millisecond
)

// FFMPEGCapture records camera video as a WebM stream using ffmpeg.
type FFMPEGCapture struct {
	command string
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command}
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.CaptureConfig) (ports.CaptureSession, error) {
	cmd := exec.CommandContext(ctx, c.command, captureArgs(cfg)...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	// A pipe owned by us rather than StdoutPipe, so Wait does not close the
	// read side before the tail of the stream is drained.
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, domain.NewCaptureError(domain.KindCaptureInitFailure, "failed to create capture pipe", err)
	}
	cmd.Stdout = writer

	if err := cmd.Start(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, domain.NewCaptureError(domain.KindCaptureInitFailure, "failed to start ffmpeg", err)
	}
	_ = writer.Close()

	exit := &processExit{done: make(chan struct{})}
	go exit.wait(cmd)

	select {
	case <-exit.done:
		_ = reader.Close()
		return nil, classifyCaptureFailure("ffmpeg exited before capture started", exit.err, stderr.String())
	case <-time.After(startupGrace):
	}

	return &ffmpegSession{
		stdout:  reader,
		stderr:  stderr,
		process: cmd.Process,
		exit:    exit,
	}, nil
}

func captureArgs(cfg ports.CaptureConfig) []string {
	if cfg.InputFormat == "" {
		cfg.InputFormat = DefaultInputFormat
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = DefaultDevice
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultFrameRate
	}
	if cfg.Resolution.Width <= 0 || cfg.Resolution.Height <= 0 {
		cfg.Resolution = domain.Resolution720p
	}

	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-framerate", strconv.Itoa(cfg.FrameRate),
		"-video_size", fmt.Sprintf("%dx%d", cfg.Resolution.Width, cfg.Resolution.Height),
		"-i", cfg.DeviceID,
		"-an",
		"-c:v", "libvpx",
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-b:v", "2M",
		"-f", "webm",
		"-",
	}
}

// classifyCaptureFailure maps ffmpeg's complaint about the input device to a
// capture error kind.
func classifyCaptureFailure(message string, err error, stderr string) error {
	detail := stringsTrimSpaceSafe(stderr)
	if detail != "" {
		message += ": " + detail
	}

	lower := strings.ToLower(detail)
	switch {
	case strings.Contains(lower, "permission denied"):
		return domain.NewCaptureError(domain.KindPermissionDenied, message, err)
	case strings.Contains(lower, "device or resource busy"),
		strings.Contains(lower, "no such file or directory"),
		strings.Contains(lower, "no such device"):
		return domain.NewCaptureError(domain.KindDeviceUnavailable, message, err)
	default:
		return domain.NewCaptureError(domain.KindCaptureInitFailure, message, err)
	}
}

// processExit records the result of cmd.Wait; err is valid once done is closed.
type processExit struct {
	done chan struct{}
	err  error
}

func (e *processExit) wait(cmd *exec.Cmd) {
	e.err = cmd.Wait()
	close(e.done)
}

type ffmpegSession struct {
	stdout *os.File
	stderr *lockedBuffer

	process *os.Process
	exit    *processExit

	mu       sync.Mutex
	stopping bool

	stopOnce  sync.Once
	stopErr   error
	closeOnce sync.Once
}

// Read returns EOF once the session was stopped and the pipe is drained, or
// once the drain grace expires because a child still holds the pipe open.
// A stream that ends without Stop is reported as a classified capture error.
func (s *ffmpegSession) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err == nil {
		return n, nil
	}
	if s.isStopping() {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return n, io.EOF
		}
		return n, err
	}
	if errors.Is(err, io.EOF) {
		return n, s.unexpectedExit()
	}
	return n, err
}

func (s *ffmpegSession) unexpectedExit() error {
	var exitErr error
	select {
	case <-s.exit.done:
		exitErr = s.exit.err
	case <-time.After(stopTimeout):
	}
	if s.isStopping() {
		return io.EOF
	}
	return classifyCaptureFailure("capture ended unexpectedly", exitErr, s.stderr.String())
}

// Close releases the read side of the stream.
func (s *ffmpegSession) Close() error {
	stopErr := s.Stop()
	s.closeOnce.Do(func() {
		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && stopErr == nil {
			stopErr = err
		}
	})
	return stopErr
}

// Stop asks ffmpeg to finish the container and waits for it to exit. The
// stream stays readable so the caller can drain what was flushed.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()

		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case <-s.exit.done:
		case <-time.After(stopTimeout):
			if s.process != nil {
				_ = s.process.Kill()
			}
			<-s.exit.done
		}
		s.stopErr = normalizeStopErr(s.exit.err)
		_ = s.stdout.SetReadDeadline(time.Now().Add(drainGrace))

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

func (s *ffmpegSession) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}

// lockedBuffer collects stderr while the process is still writing to it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}
