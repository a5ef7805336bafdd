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

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nlwallet/qrflow/configuration"
	"github.com/nlwallet/qrflow/logging"
	"github.com/nlwallet/qrflow/pkg/qr"
	"github.com/nlwallet/qrflow/pkg/session"
)

var (
	sessionID   string
	sessionTTL  time.Duration
	printQR     bool
	offerType   string
	offerIssuer string
	olderThan   time.Duration
)

var sessionCmd = &cobra.Command{
	Use:              "session",
	Short:            "Manage handoff sessions",
	PersistentPreRun: InitConfig,
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session and print its id",
	Run: func(cmd *cobra.Command, args []string) {
		config, sessions := mustAdapter()
		ttl := sessionTTL
		if ttl == 0 {
			ttl = config.SessionTTL
		}
		id, err := sessions.CreateSession(context.Background(), sessionID, ttl)
		if err != nil {
			logging.Log().WithError(err).Fatal("Could not create session")
		}
		if offerType != "" {
			offer := session.Offer{Type: offerType, Issuer: offerIssuer, Version: 2}
			if err := sessions.SetOffer(context.Background(), id, offer); err != nil {
				logging.Log().WithError(err).Fatal("Could not store offer")
			}
		}
		fmt.Println(id)
		if printQR {
			qr.RenderTerminal(cmd.OutOrStdout(), id)
		}
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show the scanned/completed state of a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, sessions := mustAdapter()
		status, err := sessions.GetStatus(context.Background(), args[0])
		if err != nil {
			logging.Log().WithError(err).Fatal("Could not read session")
		}
		fmt.Printf("scanned: %t\ncompleted: %t\n", status.Scanned(), status.Completed())
	},
}

var sessionCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Sweep expired and stale sessions once",
	Run: func(cmd *cobra.Command, args []string) {
		_, sessions := mustAdapter()
		deleted := sessions.CleanupStaleSessions(context.Background(), session.CleanupOptions{OlderThan: olderThan})
		fmt.Printf("deleted %d sessions\n", deleted)
	},
}

func mustAdapter() (*configuration.QrflowConfiguration, *session.Adapter) {
	config, err := configuration.GetInstance()
	if err != nil {
		logging.Log().WithError(err).Fatal("Could not get config instance")
	}
	sessions, err := buildAdapter(config)
	if err != nil {
		logging.Log().WithError(err).Fatal("Could not open session store")
	}
	return config, sessions
}

func init() {
	sessionCreateCmd.Flags().StringVar(&sessionID, "id", "", "Pin the session id instead of generating one")
	sessionCreateCmd.Flags().DurationVar(&sessionTTL, "ttl", 0, "Session lifetime, configured default when omitted")
	sessionCreateCmd.Flags().BoolVar(&printQR, "print-qr", false, "Print the session id as a terminal QR code")
	sessionCreateCmd.Flags().StringVar(&offerType, "offer-type", "", "Attach an offer with this credential type")
	sessionCreateCmd.Flags().StringVar(&offerIssuer, "offer-issuer", "", "Issuer for the attached offer")
	sessionCleanupCmd.Flags().DurationVar(&olderThan, "older-than", 0, "Completed-session age cutoff, default 1h")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionCleanupCmd)
	rootCmd.AddCommand(sessionCmd)
}
