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
	"fmt"
	"time"

	"github.com/cbroglie/mustache"
	"github.com/goodsign/monday"
)

const summaryTimeLayout = "2 January 2006"

// summaryTemplates render a one-line card description per canonical type.
// Types without a template fall back to the generic one.
var summaryTemplates = map[string]string{
	TypePID:    "{{given_name}} {{family_name}}, uitgegeven door {{issuer}}",
	TypeBSN:    "BSN {{bsn}} ({{issuer}})",
	TypeIncome: "Inkomensverklaring van {{issuer}}, geldig tot {{valid_to}}",
}

const genericSummaryTemplate = "{{type}} uitgegeven door {{issuer}}, geldig tot {{valid_to}}"

func summaryTimeLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		// No tzdata on this system, render in local time instead.
		return time.Local
	}
	return loc
}

// Summary renders a Dutch one-line description of a card from its type's
// template. Payload fields are available as template variables by name.
func Summary(card Card) (string, error) {
	vars := map[string]string{
		"type":   CanonicalType(card.Type),
		"issuer": card.Issuer,
	}
	if card.IssuedAt.IsSet() {
		vars["issued_at"] = monday.Format(card.IssuedAt.Time().In(summaryTimeLocation()), summaryTimeLayout, monday.LocaleNlNL)
	}
	if card.ExpiresAt.IsSet() {
		vars["valid_to"] = monday.Format(card.ExpiresAt.Time().In(summaryTimeLocation()), summaryTimeLayout, monday.LocaleNlNL)
	}
	for key, value := range card.Payload {
		if _, taken := vars[key]; taken {
			continue
		}
		vars[key] = payloadString(value)
	}

	template, ok := summaryTemplates[CanonicalType(card.Type)]
	if !ok {
		template = genericSummaryTemplate
	}
	return mustache.Render(template, vars)
}

func payloadString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "ja"
		}
		return "nee"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
