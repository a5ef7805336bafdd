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
	"sync"

	"github.com/nlwallet/qrflow/logging"
)

// Controller is a live, switchable handle on an acquired camera. At most one
// controller owns a physical device per render surface at a time.
type Controller struct {
	engine  *Engine
	opts    Options
	devices []Device
	order   []string

	mu       sync.Mutex
	index    int
	stream   Stream
	stopped  bool
	consumed bool
}

// CurrentDeviceID returns the id of the device the controller last started on.
func (c *Controller) CurrentDeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) == 0 {
		return ""
	}
	return c.order[c.index]
}

// Cameras returns the ordered candidate id list (the fallback-attempt sequence).
func (c *Controller) Cameras() []string {
	result := make([]string, len(c.order))
	copy(result, c.order)
	return result
}

// Devices returns the raw enumeration the controller was built from.
func (c *Controller) Devices() []Device {
	result := make([]Device, len(c.devices))
	copy(result, c.devices)
	return result
}

// Stop ends decoding, releases the device and clears the render surface.
// Idempotent; the controller cannot be restarted afterwards.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	c.engine.release(c.opts.Surface, c)
	releaseStream(stream)
	return nil
}

// Clear empties the render surface without stopping the decode.
func (c *Controller) Clear() error {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return nil
	}
	return stream.Clear()
}

// SwitchToNext stops the current device and retries acquisition starting at the
// next candidate in circular order. It re-arms the one-shot decode.
func (c *Controller) SwitchToNext(ctx context.Context) error {
	c.mu.Lock()
	target := (c.index + 1) % len(c.order)
	c.mu.Unlock()
	return c.switchTo(ctx, target)
}

// SwitchToDevice jumps to a specific device id, which must be in the candidate order.
func (c *Controller) SwitchToDevice(ctx context.Context, deviceID string) error {
	for i, id := range c.order {
		if id == deviceID {
			return c.switchTo(ctx, i)
		}
	}
	return ErrUnknownDevice
}

func (c *Controller) switchTo(ctx context.Context, target int) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrControllerStopped
	}
	stream := c.stream
	c.stream = nil
	c.consumed = false
	c.mu.Unlock()

	releaseStream(stream)
	if err := c.startFrom(ctx, target); err != nil {
		return err
	}
	logging.Log().Debugf("camera switched to device %s", c.CurrentDeviceID())
	if c.opts.OnSwitched != nil {
		c.opts.OnSwitched(c.CurrentDeviceID())
	}
	return nil
}

// startFrom tries candidates in order beginning at startIndex, wrapping around,
// until one passes the frame probe. Each failed attempt is torn down before the
// next candidate is tried.
func (c *Controller) startFrom(ctx context.Context, startIndex int) error {
	fps := c.opts.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	interval := c.opts.SettleInterval
	if interval <= 0 {
		interval = DefaultSettleInterval
	}
	streamOpts := StreamOptions{
		DetectionBox: detectionBox(c.opts.ContainerWidth, c.opts.ContainerHeight),
		FPS:          fps,
	}

	var lastErr error
	for attempt := 0; attempt < len(c.order); attempt++ {
		index := (startIndex + attempt) % len(c.order)
		deviceID := c.order[index]

		stream, err := c.engine.driver.Open(ctx, deviceID, streamOpts, c.handleDecode)
		if err != nil {
			lastErr = err
			logging.Log().WithError(err).Debugf("camera %s failed to start", deviceID)
			continue
		}

		// give the device a moment, then verify it actually produces frames
		if err := settle(ctx, interval); err != nil {
			releaseStream(stream)
			return err
		}
		frame, err := stream.Probe()
		if err != nil || !frame.Delivering() {
			lastErr = err
			releaseStream(stream)
			logging.Log().Debugf("camera %s produced no frames, trying next candidate", deviceID)
			continue
		}

		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			releaseStream(stream)
			return ErrControllerStopped
		}
		c.stream = stream
		c.index = index
		c.mu.Unlock()
		return nil
	}
	return &AcquireError{Attempts: len(c.order), Last: lastErr}
}

// handleDecode enforces the single-decode guarantee: however many decode events
// the driver fires, exactly one reaches the consumer, and only after the device
// has been released.
func (c *Controller) handleDecode(text string) {
	c.mu.Lock()
	if c.consumed || c.stopped {
		c.mu.Unlock()
		return
	}
	c.consumed = true
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	releaseStream(stream)
	if c.opts.OnDecode != nil {
		c.opts.OnDecode(text)
	}
}

// usable reports whether the controller can still produce a decode.
func (c *Controller) usable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.stopped && !c.consumed
}

func releaseStream(stream Stream) {
	if stream == nil {
		return
	}
	if err := stream.Stop(); err != nil {
		logging.Log().WithError(err).Debug("camera stream stop failed")
	}
	if err := stream.Clear(); err != nil {
		logging.Log().WithError(err).Debug("camera surface clear failed")
	}
}
