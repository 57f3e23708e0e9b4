package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"signscribe/internal/domain"
	"signscribe/internal/ports"
)

var (
	ErrUnknownDevice         = errors.New("unknown video device")
	ErrUnsupportedResolution = errors.New("unsupported resolution")
)

// PermissionGate probes camera access once and keeps the device list.
type PermissionGate struct {
	devices ports.MediaDevices
	events  ports.EventSink
	log     logrus.FieldLogger

	mu         sync.Mutex
	state      domain.PermissionState
	list       []domain.DeviceDescriptor
	selected   string
	resolution domain.Resolution
}

func NewPermissionGate(devices ports.MediaDevices, events ports.EventSink, log logrus.FieldLogger, preferredDevice string, resolution domain.Resolution) *PermissionGate {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if !isSupportedResolution(resolution) {
		resolution = domain.Resolution720p
	}
	return &PermissionGate{
		devices:    devices,
		events:     events,
		log:        log.WithField("component", "permission"),
		state:      domain.PermissionUnknown,
		selected:   strings.TrimSpace(preferredDevice),
		resolution: resolution,
	}
}

// Probe requests the camera, releases it immediately and records the outcome.
func (g *PermissionGate) Probe(ctx context.Context) domain.PermissionState {
	g.mu.Lock()
	deviceID := g.selected
	g.mu.Unlock()

	closer, err := g.devices.Open(ctx, deviceID)
	if err != nil {
		g.log.WithError(err).Warn("camera probe failed")
		g.setState(domain.PermissionDenied)
		g.events.SessionError(domain.ErrorCodePermission, err.Error())
		return domain.PermissionDenied
	}
	if closeErr := closer.Close(); closeErr != nil {
		g.log.WithError(closeErr).Warn("failed to release probe stream")
	}

	g.setState(domain.PermissionGranted)
	g.enumerate(ctx)
	return domain.PermissionGranted
}

// Retry resets the outcome and probes again.
func (g *PermissionGate) Retry(ctx context.Context) domain.PermissionState {
	g.setState(domain.PermissionUnknown)
	return g.Probe(ctx)
}

// MarkDenied records a permission failure observed after the probe.
func (g *PermissionGate) MarkDenied() {
	g.setState(domain.PermissionDenied)
}

func (g *PermissionGate) State() domain.PermissionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *PermissionGate) Devices() []domain.DeviceDescriptor {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.DeviceDescriptor, len(g.list))
	copy(out, g.list)
	return out
}

func (g *PermissionGate) SelectedDevice() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.selected
}

// SelectDevice chooses one of the enumerated devices.
func (g *PermissionGate) SelectDevice(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !lo.ContainsBy(g.list, func(d domain.DeviceDescriptor) bool { return d.ID == id }) {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	g.selected = id
	return nil
}

func (g *PermissionGate) Resolution() domain.Resolution {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolution
}

func (g *PermissionGate) SetResolution(res domain.Resolution) error {
	if !isSupportedResolution(res) {
		return fmt.Errorf("%w: %dx%d", ErrUnsupportedResolution, res.Width, res.Height)
	}
	g.mu.Lock()
	g.resolution = res
	g.mu.Unlock()
	return nil
}

func (g *PermissionGate) enumerate(ctx context.Context) {
	list, err := g.devices.List(ctx)
	if err != nil {
		g.log.WithError(err).Warn("device enumeration failed")
		return
	}
	list = lo.Map(list, func(d domain.DeviceDescriptor, _ int) domain.DeviceDescriptor {
		if strings.TrimSpace(d.Label) == "" {
			d.Label = "Camera " + shortID(d.ID)
		}
		return d
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	g.list = list
	known := lo.ContainsBy(list, func(d domain.DeviceDescriptor) bool { return d.ID == g.selected })
	if (g.selected == "" || !known) && len(list) > 0 {
		g.selected = list[0].ID
	}
}

func (g *PermissionGate) setState(state domain.PermissionState) {
	g.mu.Lock()
	changed := g.state != state
	g.state = state
	g.mu.Unlock()

	if changed {
		g.events.PermissionChanged(state)
	}
}

func isSupportedResolution(res domain.Resolution) bool {
	return lo.Contains(domain.SupportedResolutions(), res)
}

func shortID(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[:6]
}
