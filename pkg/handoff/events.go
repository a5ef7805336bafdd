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

package handoff

// EventKind discriminates the notifications a handoff controller emits.
type EventKind string

const (
	// EventSession fires when the presenter has created its session.
	EventSession EventKind = "session"
	// EventScanned fires when the session has been scanned by the other side.
	EventScanned EventKind = "scanned"
	// EventCompleted fires when the session reached its terminal state.
	EventCompleted EventKind = "completed"
	// EventRejected fires when a decoded id was refused, the scanner stays
	// ready for a new attempt.
	EventRejected EventKind = "rejected"
	// EventPinRequired fires when the scanner is holding at the PIN gate.
	EventPinRequired EventKind = "pin-required"
	// EventCameraStarted and EventCameraSwitched mirror the camera lifecycle.
	EventCameraStarted  EventKind = "camera-started"
	EventCameraSwitched EventKind = "camera-switched"
)

// Event is a single notification. SessionID is set for session-scoped events,
// DeviceID for camera events, Err for EventRejected.
type Event struct {
	Kind      EventKind
	SessionID string
	DeviceID  string
	Err       error
}

// EventFunc receives events. Callbacks run on the goroutine that produced the
// event and should return quickly.
type EventFunc func(Event)
