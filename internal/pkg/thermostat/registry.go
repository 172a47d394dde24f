package thermostat

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
)

// DeviceLister lists the devices visible to the project
type DeviceLister interface {
	Devices(ctx context.Context) ([]sdmapi.RawDevice, error)
}

// Registry holds a view for each thermostat in the project, keyed by device ID
type Registry struct {
	mu    sync.RWMutex
	views map[string]*Thermostat
}

func NewRegistry() *Registry {
	return &Registry{
		views: make(map[string]*Thermostat),
	}
}

// Load replaces the registry contents with a view of every thermostat the
// lister returns.  Other device types are skipped.
func (r *Registry) Load(ctx context.Context, lister DeviceLister) (int, error) {
	ctxLogger := logging.Logger(ctx)

	devices, err := lister.Devices(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "loading thermostats")
	}

	views := make(map[string]*Thermostat, len(devices))
	for i := range devices {
		t, err := New(&devices[i])
		if err != nil {
			ctxLogger.Debugf("Skipping device %s: %s", devices[i].Name, err)
			continue
		}

		views[t.DeviceID()] = t
	}

	r.mu.Lock()
	r.views = views
	r.mu.Unlock()

	ctxLogger.Infof("Loaded %d thermostats (%d devices)", len(views), len(devices))
	return len(views), nil
}

func (r *Registry) Get(deviceID string) (*Thermostat, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.views[deviceID]
	return t, ok
}

// List returns every view, ordered by device ID
func (r *Registry) List() []*Thermostat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.views))
	for id := range r.views {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	views := make([]*Thermostat, len(ids))
	for i, id := range ids {
		views[i] = r.views[id]
	}

	return views
}

// Update refreshes the view of one device from a fresh snapshot, adding it if
// the device is a thermostat the registry has not seen yet
func (r *Registry) Update(ctx context.Context, deviceID string, getter sdmapi.DeviceGetter) error {
	if t, ok := r.Get(deviceID); ok {
		return t.Update(ctx, getter)
	}

	raw, err := getter.GetDevice(ctx, deviceID)
	if err != nil {
		return errors.Wrapf(err, "fetching new device %s", deviceID)
	}

	t, err := New(raw)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if existing, ok := r.views[deviceID]; ok {
		r.mu.Unlock()
		return existing.Refresh(raw)
	}
	r.views[deviceID] = t
	r.mu.Unlock()

	return nil
}
