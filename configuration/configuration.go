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

package configuration

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/nlwallet/qrflow/logging"
	"github.com/nlwallet/qrflow/pkg/session"
)

const DefaultHTTPPort = 3000

// QrflowConfiguration is the service configuration, loaded from a yaml file
// with defaults for every field. An empty StorePath selects the in-memory
// session store.
type QrflowConfiguration struct {
	HTTPAddress     string        `mapstructure:"http_address"`
	StorePath       string        `mapstructure:"store_path"`
	WalletDir       string        `mapstructure:"wallet_dir"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

var config *QrflowConfiguration

// GetInstance returns the initialized configuration, an error when Initialize
// was never called.
func GetInstance() (*QrflowConfiguration, error) {
	if config == nil {
		return nil, errors.New("cannot get instance of uninitialized config")
	}
	return config, nil
}

// Initialize loads the global configuration. A missing config file is fine,
// the defaults apply.
func Initialize(path, filename string) (err error) {
	config, err = LoadConfigFromFile(path, filename)
	return
}

func LoadConfigFromFile(path, filename string) (*QrflowConfiguration, error) {
	config := QrflowConfiguration{}
	config.SetDefaults()
	if err := config.LoadFromFile(path, filename); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
		logging.Log().Debugf("no config file %s/%s.yaml, using defaults", path, filename)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (config *QrflowConfiguration) LoadFromFile(path, filename string) error {
	logging.Log().Infof("Loading config from %s/%s.yaml", path, filename)
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(filename)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	return v.Unmarshal(config)
}

func (config *QrflowConfiguration) SetDefaults() {
	config.HTTPAddress = fmt.Sprintf("localhost:%d", DefaultHTTPPort)
	config.StorePath = ""
	config.WalletDir = "./wallet"
	config.SessionTTL = session.DefaultTTL
	config.CleanupInterval = 5 * time.Minute
}

func (config *QrflowConfiguration) Validate() error {
	if config.HTTPAddress == "" {
		return errors.New("http_address is required")
	}
	if config.SessionTTL == 0 {
		return errors.New("session_ttl may not be zero")
	}
	if config.CleanupInterval <= 0 {
		return errors.New("cleanup_interval must be positive")
	}
	return nil
}
