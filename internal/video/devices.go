package video

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/samber/lo"

	"signscribe/internal/domain"
)

const (
	DefaultDevDir = "/dev"
	DefaultSysDir = "/sys/class/video4linux"
)

// V4L2Devices enumerates and probes Video4Linux capture nodes.
type V4L2Devices struct {
	DevDir string
	SysDir string
}

func NewV4L2Devices() *V4L2Devices {
	return &V4L2Devices{DevDir: DefaultDevDir, SysDir: DefaultSysDir}
}

// List returns the capture nodes in device order. Labels come from sysfs and
// are empty when it has none.
func (d *V4L2Devices) List(ctx context.Context) ([]domain.DeviceDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	paths, err := filepath.Glob(filepath.Join(d.devDir(), "video*"))
	if err != nil {
		return nil, err
	}
	paths = lo.Filter(paths, func(path string, _ int) bool {
		return d.isCaptureNode(filepath.Base(path))
	})
	sort.Slice(paths, func(i, j int) bool {
		return deviceLess(filepath.Base(paths[i]), filepath.Base(paths[j]))
	})

	devices := make([]domain.DeviceDescriptor, 0, len(paths))
	for _, path := range paths {
		devices = append(devices, domain.DeviceDescriptor{
			ID:    path,
			Label: d.label(filepath.Base(path)),
		})
	}
	return devices, nil
}

// Open checks that the device can be opened for reading. An empty id probes
// the first device found.
func (d *V4L2Devices) Open(ctx context.Context, id string) (io.Closer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		devices, err := d.List(ctx)
		if err != nil {
			return nil, domain.NewCaptureError(domain.KindDeviceUnavailable, "failed to enumerate cameras", err)
		}
		if len(devices) == 0 {
			return nil, domain.NewCaptureError(domain.KindDeviceUnavailable, "no camera found", nil)
		}
		id = devices[0].ID
	}

	file, err := os.OpenFile(id, os.O_RDONLY, 0)
	if err != nil {
		return nil, classifyOpenError(id, err)
	}
	return file, nil
}

func (d *V4L2Devices) label(name string) string {
	data, err := os.ReadFile(filepath.Join(d.sysDir(), name, "name"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// isCaptureNode skips the extra nodes a driver registers for the same device
// (UVC metadata nodes have index 1). Nodes without sysfs entries are kept.
func (d *V4L2Devices) isCaptureNode(name string) bool {
	data, err := os.ReadFile(filepath.Join(d.sysDir(), name, "index"))
	if err != nil {
		return true
	}
	return strings.TrimSpace(string(data)) == "0"
}

func (d *V4L2Devices) devDir() string {
	if d.DevDir == "" {
		return DefaultDevDir
	}
	return d.DevDir
}

func (d *V4L2Devices) sysDir() string {
	if d.SysDir == "" {
		return DefaultSysDir
	}
	return d.SysDir
}

func classifyOpenError(id string, err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return domain.NewCaptureError(domain.KindPermissionDenied, "camera access denied for "+id, err)
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.ENODEV):
		return domain.NewCaptureError(domain.KindDeviceUnavailable, "camera unavailable: "+id, err)
	default:
		return domain.NewCaptureError(domain.KindCaptureInitFailure, "failed to open camera "+id, err)
	}
}

// deviceLess orders video2 before video10.
func deviceLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
