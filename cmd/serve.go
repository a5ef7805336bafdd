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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/nlwallet/qrflow/api"
	"github.com/nlwallet/qrflow/configuration"
	"github.com/nlwallet/qrflow/logging"
	"github.com/nlwallet/qrflow/pkg/session"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:              "serve",
	Short:            "Start the session service",
	Long:             `Start the HTTP session service with periodic stale-session cleanup.`,
	PersistentPreRun: InitConfig,
	Run: func(cmd *cobra.Command, args []string) {
		config, err := configuration.GetInstance()
		if err != nil {
			logging.Log().WithError(err).Fatal("Could not get config instance")
		}
		sessions, err := buildAdapter(config)
		if err != nil {
			logging.Log().WithError(err).Fatal("Could not open session store")
		}

		router := echo.New()
		router.HideBanner = true
		router.Use(middleware.Recover())
		api.Wrapper{Sessions: sessions}.Routes(router)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		done := make(chan struct{})
		go runCleanup(sessions, config.CleanupInterval, done)

		go func() {
			if err := router.Start(config.HTTPAddress); err != nil && err != http.ErrServerClosed {
				logging.Log().WithError(err).Fatal("Could not start server")
			}
		}()
		logging.Log().Infof("Serving on %s", config.HTTPAddress)

		<-stop
		close(done)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := router.Shutdown(shutdownCtx); err != nil {
			logging.Log().WithError(err).Error("Server shutdown failed")
		}
	},
}

// runCleanup sweeps stale sessions on a fixed interval until done is closed.
func runCleanup(sessions *session.Adapter, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deleted := sessions.CleanupStaleSessions(context.Background(), session.CleanupOptions{})
			if deleted > 0 {
				logging.Log().WithField("count", deleted).Info("removed stale sessions")
			}
		case <-done:
			return
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
