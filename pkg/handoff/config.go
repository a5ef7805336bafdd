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

import (
	"fmt"
	"time"

	"github.com/nlwallet/qrflow/pkg/session"
)

// Role selects which side of the handoff a controller drives.
type Role string

const (
	// RolePresenter creates a session and renders it as a QR.
	RolePresenter Role = "presenter"
	// RoleScanner decodes a session id and drives it to completion.
	RoleScanner Role = "scanner"
)

// WaitCondition selects which signal the presenter navigates on.
type WaitCondition string

const (
	WaitScanned   WaitCondition = "scanned"
	WaitCompleted WaitCondition = "completed"
)

// DefaultPIN is the demo PIN: five digits, configurable per surface.
const DefaultPIN = "12345"

const (
	defaultIntentAttempts = 5
	defaultIntentDelay    = 200 * time.Millisecond
)

// Config is the declarative configuration of one handoff surface, validated
// once at construction. Unset fields get the documented defaults.
type Config struct {
	Role Role

	// SessionID pins the session id instead of generating one (presenter only).
	SessionID string
	// UnguessableID generates a random id instead of the timestamp-derived
	// default. Ignored when SessionID is set.
	UnguessableID bool
	// TTL is the session lifetime, session.DefaultTTL when zero or negative.
	TTL time.Duration
	// Offer or Request is written as typed session metadata right after creation (presenter only).
	Offer   *session.Offer
	Request *session.Request
	// WaitFor selects the presenter's navigation trigger, WaitCompleted by default.
	WaitFor WaitCondition
	// QRSize is the rendered code edge length in pixels, qr.DefaultSize when zero.
	QRSize int

	// Autostart begins camera acquisition on Start without an explicit user action.
	Autostart bool
	// PreferBackCamera and PreferredDeviceID steer the camera attempt order.
	PreferBackCamera  bool
	PreferredDeviceID string

	// RequirePIN gates issue-flow completion behind the PIN entry. PINValue
	// defaults to DefaultPIN. use_card interactions are confirmed by card
	// selection instead and never pass the PIN gate.
	RequirePIN bool
	PINValue   string

	// NavigateOnScan navigates right after a successful scan without completing.
	NavigateOnScan bool
	// CompleteImmediate marks the session completed directly after classification.
	CompleteImmediate bool
	// DeleteOnComplete removes the session record on completion. Ignored for
	// use_card interactions: those sessions stay alive so both sides can read
	// the response.
	DeleteOnComplete bool
	// NextURL is the terminal navigation target, passed to the navigator callback.
	NextURL string

	// IntentAttempts/IntentDelay bound the classification retry loop that
	// compensates for write-propagation latency between the two sides.
	IntentAttempts int
	IntentDelay    time.Duration
}

// Validate checks the configuration and fills in defaults. It must be called
// (and pass) before a controller is built from the config.
func (c *Config) Validate() error {
	switch c.Role {
	case RolePresenter, RoleScanner:
	case "":
		return fmt.Errorf("role is required")
	default:
		return fmt.Errorf("unknown role: %s", c.Role)
	}

	if c.TTL <= 0 {
		c.TTL = session.DefaultTTL
	}
	if c.WaitFor == "" {
		c.WaitFor = WaitCompleted
	} else if c.WaitFor != WaitScanned && c.WaitFor != WaitCompleted {
		return fmt.Errorf("unknown wait condition: %s", c.WaitFor)
	}

	if c.PINValue == "" {
		c.PINValue = DefaultPIN
	}
	if c.RequirePIN {
		for _, r := range c.PINValue {
			if r < '0' || r > '9' {
				return fmt.Errorf("pin value must be numeric")
			}
		}
	}

	if c.IntentAttempts <= 0 {
		c.IntentAttempts = defaultIntentAttempts
	}
	if c.IntentDelay <= 0 {
		c.IntentDelay = defaultIntentDelay
	}

	if c.Role == RolePresenter && c.Offer != nil && c.Request != nil {
		return fmt.Errorf("a session carries an offer or a request, not both")
	}
	return nil
}
