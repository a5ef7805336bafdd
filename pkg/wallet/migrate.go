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
	"strings"
	"time"
)

// SchemaVersion is the current persisted wallet document version. Documents
// without a version field are treated as legacy and migrated once at load.
const SchemaVersion = 2

// Document is the persisted wallet shape.
type Document struct {
	Version int    `json:"version"`
	Cards   []Card `json:"cards"`
}

const yearInMillis = int64(365.25 * 24 * 60 * 60 * 1000)

// migrate upgrades a loaded document in place and reports whether anything
// changed. It is idempotent: running it on an already-migrated document is a
// no-op. Timestamp string forms are normalized by Timestamp itself during
// unmarshalling, so this pipeline only handles payload shape.
func migrate(doc *Document, now time.Time) bool {
	changed := doc.Version != SchemaVersion
	doc.Version = SchemaVersion
	for i := range doc.Cards {
		card := &doc.Cards[i]
		card.Type = canonicalized(card.Type, &changed)
		if CanonicalType(card.Type) != TypePID || card.Payload == nil {
			continue
		}
		if migratePIDPayload(card.Payload, now) {
			changed = true
		}
	}
	return changed
}

func canonicalized(raw string, changed *bool) string {
	canonical := CanonicalType(raw)
	if canonical != raw {
		*changed = true
	}
	return canonical
}

// migratePIDPayload applies the legacy field upgrades to one PID payload:
// split name into given_name/family_name (last token is the family name),
// copy birth into birth_date, and derive the majority flag from a parseable
// birth date. Fields already present are never overwritten.
func migratePIDPayload(payload map[string]interface{}, now time.Time) bool {
	changed := false
	if name, ok := payload["name"].(string); ok {
		_, hasGiven := payload["given_name"]
		_, hasFamily := payload["family_name"]
		if !hasGiven && !hasFamily {
			parts := strings.Fields(name)
			switch {
			case len(parts) > 1:
				payload["given_name"] = strings.Join(parts[:len(parts)-1], " ")
				payload["family_name"] = parts[len(parts)-1]
				changed = true
			case len(parts) == 1:
				payload["given_name"] = parts[0]
				changed = true
			}
		}
	}
	if birth, ok := payload["birth"]; ok {
		if _, hasDate := payload["birth_date"]; !hasDate {
			payload["birth_date"] = birth
			changed = true
		}
	}
	if _, ok := payload["age_over_18"]; !ok {
		if born, ok := parseBirthDate(payload); ok {
			ageYears := now.Sub(born).Hours() / (365.25 * 24)
			payload["age_over_18"] = ageYears >= 18
			changed = true
		}
	}
	return changed
}

func parseBirthDate(payload map[string]interface{}) (time.Time, bool) {
	for _, key := range []string{"birth_date", "birth"} {
		s, ok := payload[key].(string)
		if !ok || s == "" {
			continue
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
