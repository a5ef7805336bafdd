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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlwallet/qrflow/pkg/session"
)

func TestConfig_Validate(t *testing.T) {
	t.Run("role is required", func(t *testing.T) {
		cfg := Config{}
		assert.EqualError(t, cfg.Validate(), "role is required")
	})

	t.Run("unknown role", func(t *testing.T) {
		cfg := Config{Role: "spectator"}
		assert.EqualError(t, cfg.Validate(), "unknown role: spectator")
	})

	t.Run("defaults", func(t *testing.T) {
		cfg := Config{Role: RoleScanner}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, session.DefaultTTL, cfg.TTL)
		assert.Equal(t, WaitCompleted, cfg.WaitFor)
		assert.Equal(t, DefaultPIN, cfg.PINValue)
		assert.Equal(t, defaultIntentAttempts, cfg.IntentAttempts)
		assert.Equal(t, defaultIntentDelay, cfg.IntentDelay)
	})

	t.Run("non-numeric PIN refused when the gate is on", func(t *testing.T) {
		cfg := Config{Role: RoleScanner, RequirePIN: true, PINValue: "12a45"}
		assert.EqualError(t, cfg.Validate(), "pin value must be numeric")

		// Without the gate the value is never compared, so it passes.
		cfg = Config{Role: RoleScanner, PINValue: "12a45"}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown wait condition", func(t *testing.T) {
		cfg := Config{Role: RolePresenter, WaitFor: "decoded"}
		assert.EqualError(t, cfg.Validate(), "unknown wait condition: decoded")
	})

	t.Run("offer and request are mutually exclusive", func(t *testing.T) {
		cfg := Config{Role: RolePresenter, Offer: &session.Offer{}, Request: &session.Request{}}
		assert.EqualError(t, cfg.Validate(), "a session carries an offer or a request, not both")
	})
}
