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
	"errors"
	"fmt"
)

// Device is one enumerated video input.
type Device struct {
	ID    string
	Label string
}

// DecodeFunc receives the text of a decoded frame.
type DecodeFunc func(text string)

// StreamOptions configures a continuous decode on one device.
type StreamOptions struct {
	// DetectionBox is the edge length in pixels of the square scan region.
	DetectionBox int
	// FPS is the target decode frame rate.
	FPS int
}

// Frame describes the state of the video surface behind a stream.
type Frame struct {
	ReadyState int
	Width      int
	Height     int
}

// Delivering reports whether the surface actually produces pixels. Camera
// startup routinely resolves without ever delivering a frame, so "start
// succeeded" is never trusted on its own.
func (f Frame) Delivering() bool {
	return f.ReadyState >= 2 && f.Width > 0
}

// Stream is a running continuous decode on one device.
type Stream interface {
	// Probe inspects the underlying video surface.
	Probe() (Frame, error)
	// Stop ends decoding and releases the device.
	Stop() error
	// Clear empties the render surface.
	Clear() error
}

// Driver abstracts the camera/barcode-decoding machinery, mainly for enabling better testing.
type Driver interface {
	// Devices enumerates the available video inputs.
	Devices(ctx context.Context) ([]Device, error)
	// Open starts a continuous decode on the given device, invoking onDecode per decoded frame.
	Open(ctx context.Context, deviceID string, opts StreamOptions, onDecode DecodeFunc) (Stream, error)
}

// ErrNoCameras is returned when device enumeration yields nothing.
var ErrNoCameras = errors.New("no cameras found")

// ErrUnknownDevice is returned by SwitchToDevice for an id outside the candidate order.
var ErrUnknownDevice = errors.New("unknown camera device")

// ErrControllerStopped is returned when a stopped controller is asked to switch devices.
var ErrControllerStopped = errors.New("camera controller already stopped")

// AcquireError reports that every candidate device failed to deliver frames.
type AcquireError struct {
	Attempts int
	Last     error
}

func (e *AcquireError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("no camera delivered frames (%d candidates tried): %v", e.Attempts, e.Last)
	}
	return fmt.Sprintf("no camera delivered frames (%d candidates tried)", e.Attempts)
}

func (e *AcquireError) Unwrap() error {
	return e.Last
}
