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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummary(t *testing.T) {
	t.Run("PID", func(t *testing.T) {
		text, err := Summary(Card{
			Type:   TypePID,
			Issuer: "Gemeente",
			Payload: map[string]interface{}{
				"given_name":  "Willeke Liselotte",
				"family_name": "De Bruijn",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "Willeke Liselotte De Bruijn, uitgegeven door Gemeente", text)
	})

	t.Run("unknown type uses the generic template with a Dutch date", func(t *testing.T) {
		expires := time.Date(2027, 3, 10, 12, 0, 0, 0, time.UTC)
		text, err := Summary(Card{
			Type:      "NVM Lidmaatschap",
			Issuer:    "NVM",
			ExpiresAt: At(expires),
		})
		require.NoError(t, err)
		assert.Equal(t, "NVM_LIDMAATSCHAP uitgegeven door NVM, geldig tot 10 maart 2027", text)
	})

	t.Run("payload variables never shadow the standard ones", func(t *testing.T) {
		text, err := Summary(Card{
			Type:    TypeBSN,
			Issuer:  "Rijksoverheid",
			Payload: map[string]interface{}{"bsn": "999991772", "issuer": "spoof"},
		})
		require.NoError(t, err)
		assert.Equal(t, "BSN 999991772 (Rijksoverheid)", text)
	})
}

func TestSummaryTimeLocation(t *testing.T) {
	// Must yield a usable location even when tzdata is absent, Time.In
	// panics on nil.
	assert.NotNil(t, summaryTimeLocation())
}
