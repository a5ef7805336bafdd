/*
 * Qrflow
 * Copyright (C) 2026. Nlwallet community
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package camera

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/nlwallet/qrflow/logging"
)

const (
	// DefaultFPS is the target decode frame rate.
	DefaultFPS = 15
	// DefaultSettleInterval is how long a freshly started stream gets before its frame probe.
	DefaultSettleInterval = 500 * time.Millisecond

	minDetectionBox   = 230
	maxDetectionBox   = 360
	detectionBoxRatio = 0.85
)

var rearLabel = regexp.MustCompile(`(?i)back|rear|environment`)

// Options configures one acquisition attempt.
type Options struct {
	// Surface identifies the render surface; concurrent acquisitions on one
	// surface are serialized and share at most one live controller.
	Surface string
	// ContainerWidth/Height are the rendered dimensions the detection box is derived from.
	ContainerWidth  int
	ContainerHeight int
	// PreferBackCamera puts rear-labelled devices first in the attempt order.
	PreferBackCamera bool
	// PreferredDeviceID, when present in the enumeration, is pinned to the
	// front of the attempt order (sticky selection across restarts).
	PreferredDeviceID string
	// FPS defaults to DefaultFPS, SettleInterval to DefaultSettleInterval.
	FPS            int
	SettleInterval time.Duration

	// OnDecode is the consumer's decode continuation. The device is released
	// before it runs; decoding is one-shot per controller unless the consumer
	// restarts via SwitchToNext/SwitchToDevice or a fresh acquisition.
	OnDecode DecodeFunc
	// OnStarted and OnSwitched report the active device id.
	OnStarted  func(deviceID string)
	OnSwitched func(deviceID string)
}

// Engine turns an unreliable Driver into verified, live-switchable controllers.
type Engine struct {
	driver Driver

	mu       sync.Mutex
	active   map[string]*Controller
	surfaces map[string]*sync.Mutex
}

// NewEngine creates an Engine on the given driver.
func NewEngine(driver Driver) *Engine {
	return &Engine{
		driver:   driver,
		active:   map[string]*Controller{},
		surfaces: map[string]*sync.Mutex{},
	}
}

// Acquire enumerates candidate devices and tries them in order until one
// verifiably delivers frames, returning a controller for the first that does.
// It returns ErrNoCameras when nothing is enumerated and an AcquireError when
// every candidate fails the frame probe.
func (e *Engine) Acquire(ctx context.Context, opts Options) (*Controller, error) {
	surfaceLock := e.surfaceLock(opts.Surface)
	surfaceLock.Lock()
	defer surfaceLock.Unlock()

	e.mu.Lock()
	previous := e.active[opts.Surface]
	e.mu.Unlock()
	if previous != nil {
		if previous.usable() {
			return previous, nil
		}
		// never leave two controllers contending for the same device
		_ = previous.Stop()
	}

	devices, err := e.driver.Devices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrNoCameras
	}

	controller := &Controller{
		engine:  e,
		opts:    opts,
		devices: devices,
		order:   buildOrder(devices, opts),
	}
	if err := controller.startFrom(ctx, 0); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.active[opts.Surface] = controller
	e.mu.Unlock()

	logging.Log().Debugf("camera started on device %s", controller.CurrentDeviceID())
	if opts.OnStarted != nil {
		opts.OnStarted(controller.CurrentDeviceID())
	}
	return controller, nil
}

func (e *Engine) surfaceLock(surface string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.surfaces[surface]
	if !ok {
		lock = &sync.Mutex{}
		e.surfaces[surface] = lock
	}
	return lock
}

func (e *Engine) release(surface string, controller *Controller) {
	e.mu.Lock()
	if e.active[surface] == controller {
		delete(e.active, surface)
	}
	e.mu.Unlock()
}

// buildOrder partitions devices into rear-like and other, puts the preferred
// partition first, and pins an explicitly requested device to the front.
func buildOrder(devices []Device, opts Options) []string {
	var rear, other []string
	for _, device := range devices {
		if rearLabel.MatchString(device.Label) {
			rear = append(rear, device.ID)
		} else {
			other = append(other, device.ID)
		}
	}
	var order []string
	if opts.PreferBackCamera {
		order = append(append(order, rear...), other...)
	} else {
		order = append(append(order, other...), rear...)
	}
	if opts.PreferredDeviceID != "" {
		for i, id := range order {
			if id == opts.PreferredDeviceID {
				order = append(order[:i], order[i+1:]...)
				order = append([]string{id}, order...)
				break
			}
		}
	}
	return order
}

// detectionBox sizes the scan region from the container's rendered dimensions:
// ~85% of the smaller side, bounded to [230,360] pixels.
func detectionBox(width, height int) int {
	smaller := width
	if height < smaller {
		smaller = height
	}
	box := int(float64(smaller) * detectionBoxRatio)
	if box < minDetectionBox {
		return minDetectionBox
	}
	if box > maxDetectionBox {
		return maxDetectionBox
	}
	return box
}

func settle(ctx context.Context, interval time.Duration) error {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
