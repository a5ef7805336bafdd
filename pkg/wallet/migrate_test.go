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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var migrationNow = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

func TestMigrate_LegacyPIDPayload(t *testing.T) {
	doc := Document{Cards: []Card{{
		ID:   "PID-1",
		Type: "person-id",
		Payload: map[string]interface{}{
			"name":  "Willeke Liselotte De Bruijn",
			"birth": "1997-03-10",
		},
	}}}

	require.True(t, migrate(&doc, migrationNow))
	assert.Equal(t, SchemaVersion, doc.Version)

	card := doc.Cards[0]
	assert.Equal(t, TypePID, card.Type)
	// The split is mechanical: the last whitespace token is the family name,
	// a tussenvoegsel stays with the given names.
	assert.Equal(t, "Willeke Liselotte De", card.Payload["given_name"])
	assert.Equal(t, "Bruijn", card.Payload["family_name"])
	assert.Equal(t, "1997-03-10", card.Payload["birth_date"])
	assert.Equal(t, true, card.Payload["age_over_18"])

	t.Run("idempotent", func(t *testing.T) {
		assert.False(t, migrate(&doc, migrationNow))
	})
}

func TestMigrate_SingleTokenName(t *testing.T) {
	doc := Document{Cards: []Card{{
		Type:    TypePID,
		Payload: map[string]interface{}{"name": "Willeke"},
	}}}
	migrate(&doc, migrationNow)
	assert.Equal(t, "Willeke", doc.Cards[0].Payload["given_name"])
	_, hasFamily := doc.Cards[0].Payload["family_name"]
	assert.False(t, hasFamily)
}

func TestMigrate_DoesNotOverwriteNewFields(t *testing.T) {
	doc := Document{Cards: []Card{{
		Type: TypePID,
		Payload: map[string]interface{}{
			"name":        "Old Name",
			"given_name":  "Willeke",
			"birth":       "1997-03-10",
			"birth_date":  "1997-03-11",
			"age_over_18": false,
		},
	}}}
	migrate(&doc, migrationNow)
	payload := doc.Cards[0].Payload
	assert.Equal(t, "Willeke", payload["given_name"])
	assert.Equal(t, "1997-03-11", payload["birth_date"])
	assert.Equal(t, false, payload["age_over_18"])
}

func TestMigrate_MinorUnderEighteen(t *testing.T) {
	doc := Document{Cards: []Card{{
		Type:    TypePID,
		Payload: map[string]interface{}{"birth_date": "2010-06-01"},
	}}}
	migrate(&doc, migrationNow)
	assert.Equal(t, false, doc.Cards[0].Payload["age_over_18"])
}

func TestMigrate_UnparseableBirthLeavesFlagUnset(t *testing.T) {
	doc := Document{Cards: []Card{{
		Type:    TypePID,
		Payload: map[string]interface{}{"birth_date": "ergens in maart"},
	}}}
	migrate(&doc, migrationNow)
	_, ok := doc.Cards[0].Payload["age_over_18"]
	assert.False(t, ok)
}

func TestMigrate_TimestampNormalizationAtLoad(t *testing.T) {
	// Stamp normalization happens in Timestamp unmarshalling, before the
	// payload pipeline runs.
	raw := `{"cards":[{"id":"INKOMEN-1","type":"inkomensverklaring","issuedAt":"2025-06-01","expiresAt":1790000000000}]}`
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	require.True(t, migrate(&doc, migrationNow))

	card := doc.Cards[0]
	assert.Equal(t, TypeIncome, card.Type)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), card.IssuedAt.Millis)
	assert.Equal(t, int64(1790000000000), card.ExpiresAt.Millis)
}
