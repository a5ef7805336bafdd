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

package session

import (
	"errors"
)

// ErrSessionNotFound is returned when an operation references an id for which no session exists.
var ErrSessionNotFound = errors.New("session not found")

// KindOffer marks a session carrying credential data for the scanning side.
const KindOffer = "offer"

// KindRequest marks a session asking the scanning side to provide a credential.
const KindRequest = "request"

// IntentUseCard is the well-known intent triggering the share-card path.
// Absence, or any other value, implies an issue/add-card path.
const IntentUseCard = "use_card"

// Offer describes a credential the presenter is issuing to the scanning side.
type Offer struct {
	Type    string                 `json:"type"`
	Issuer  string                 `json:"issuer"`
	Payload map[string]interface{} `json:"payload"`
	Version int                    `json:"version"`
}

// Request describes what the scanning side is being asked to provide.
type Request struct {
	Intent  string `json:"intent"`
	Type    string `json:"type"`
	Scope   string `json:"scope,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Version int    `json:"version"`
}

// Outcome values for Response.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
)

// Response is the scanning side's answer to a request.
type Response struct {
	Outcome        string                 `json:"outcome"`
	Type           string                 `json:"type,omitempty"`
	Issuer         string                 `json:"issuer,omitempty"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	RequestedType  string                 `json:"requestedType,omitempty"`
	SelectedFields []string               `json:"selectedFields,omitempty"`
	Version        int                    `json:"version"`
}

// Info holds the root-level quick-access fields of a session, used for intent
// classification without pulling the full offer/request object.
type Info struct {
	Kind   string `json:"kind"`
	Intent string `json:"intent,omitempty"`
	Type   string `json:"type,omitempty"`
}

// Status is the canonical scanned/completed state of a session. The store keeps
// two serialization views of it: legacy booleans (scanned, completed) and
// namespaced timestamps (status/scannedAt, status/completedAt). Producers may
// write either, so readers treat "either view set" as the true signal.
type Status struct {
	ScannedAt   int64 `json:"scannedAt,omitempty"`
	CompletedAt int64 `json:"completedAt,omitempty"`
}

// Scanned reports whether the session has been scanned.
func (s Status) Scanned() bool { return s.ScannedAt > 0 }

// Completed reports whether the session has been completed.
func (s Status) Completed() bool { return s.CompletedAt > 0 }
