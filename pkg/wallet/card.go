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

package wallet

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// Well-known canonical credential types. Unknown types pass through
// canonicalization unchanged apart from case and separator normalization.
const (
	TypePID    = "PID"
	TypeBSN    = "BSN"
	TypeIncome = "INKOMEN"
)

// synonyms maps already-normalized variants onto the fixed vocabulary.
var synonyms = map[string]string{
	"INKOMENSVERKLARING": TypeIncome,
	"PERSON_ID":          TypePID,
	"IDENTITEIT":         TypePID,
	"ID":                 TypePID,
}

var separators = regexp.MustCompile(`[\s-]+`)

// CanonicalType normalizes a raw credential type string: uppercase, collapse
// whitespace and hyphens to underscores, then map known synonyms. It is
// idempotent and applied at card creation, migration and request matching, so
// spelling drift between producers never causes a spurious mismatch.
func CanonicalType(raw string) string {
	t := strings.ToUpper(strings.TrimSpace(raw))
	t = separators.ReplaceAllString(t, "_")
	if target, ok := synonyms[t]; ok {
		return target
	}
	return t
}

// CardStatus is the validity of a card at a point in time.
type CardStatus string

const (
	StatusValid   CardStatus = "geldig"
	StatusExpired CardStatus = "verlopen"
)

// Card is a locally persisted credential record.
type Card struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Issuer    string                 `json:"issuer"`
	IssuedAt  Timestamp              `json:"issuedAt,omitempty"`
	ExpiresAt Timestamp              `json:"expiresAt,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Status is a pure function of ExpiresAt and the given instant: expired iff
// the expiry is set and lies in the past.
func (c Card) Status(now time.Time) CardStatus {
	if c.ExpiresAt.IsSet() && c.ExpiresAt.Millis < now.UnixMilli() {
		return StatusExpired
	}
	return StatusValid
}

// timestampLayouts are tried in order when a stamp was persisted as a string.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02-01-2006",
}

// Timestamp is an epoch-millis instant that tolerates the date formats older
// producers persisted. A string value that parses is normalized to millis; an
// unparseable value is carried along verbatim so nothing is lost on rewrite.
type Timestamp struct {
	Millis int64
	Raw    string
}

// At builds a Timestamp from a time.
func At(t time.Time) Timestamp {
	return Timestamp{Millis: t.UnixMilli()}
}

// IsSet reports whether the timestamp holds a usable instant.
func (t Timestamp) IsSet() bool { return t.Millis > 0 }

// Time returns the instant, the zero time when unset.
func (t Timestamp) Time() time.Time {
	if !t.IsSet() {
		return time.Time{}
	}
	return time.UnixMilli(t.Millis)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Millis > 0 {
		return json.Marshal(t.Millis)
	}
	if t.Raw != "" {
		return json.Marshal(t.Raw)
	}
	return []byte("null"), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}
	var millis int64
	if err := json.Unmarshal(data, &millis); err == nil {
		t.Millis = millis
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Unexpected shape, drop rather than fail the whole document.
		return nil
	}
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Millis = parsed.UnixMilli()
			return nil
		}
	}
	t.Raw = s
	return nil
}
