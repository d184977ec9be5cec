// Copyright (c) 2025 Fraunhofer AISEC
// Fraunhofer-Gesellschaft zur Foerderung der angewandten Forschung e.V.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.org/x/exp/maps"

	"github.com/Fraunhofer-AISEC/attestation-service/internal"
	"github.com/Fraunhofer-AISEC/attestation-service/verifier"
)

const (
	storeMemory = "memory"
	storeSqlite = "sqlite"
)

type RvpsConfig struct {
	Store      string `json:"store"`
	SqlitePath string `json:"sqlitePath"`
}

type config struct {
	Addr        string              `json:"addr"`
	LogLevel    string              `json:"logLevel"`
	RequireCcel bool                `json:"requireCcel"`
	RequireAael bool                `json:"requireAael"`
	Dcap        verifier.DcapConfig `json:"dcap"`
	Rvps        RvpsConfig          `json:"rvps"`
	TokenKey    string              `json:"tokenKey"`
	AuthToken   string              `json:"authToken"`
	Debug       bool                `json:"debug"`
}

const (
	configFlag           = "config"
	addrFlag             = "addr"
	logLevelFlag         = "log-level"
	requireCcelFlag      = "require-ccel"
	requireAaelFlag      = "require-aael"
	getCollateralFlag    = "get-collateral"
	checkRevocationsFlag = "check-revocations"
	storeFlag            = "rvps-store"
	sqlitePathFlag       = "rvps-sqlite-path"
	tokenKeyFlag         = "token-key"
	authTokenFlag        = "auth-token"
	debugFlag            = "debug"
)

var flags = []cli.Flag{
	&cli.StringFlag{Name: configFlag, Usage: "JSON configuration file"},
	&cli.StringFlag{Name: addrFlag, Usage: "HTTP listen address (default: localhost:8080)"},
	&cli.StringFlag{
		Name:  logLevelFlag,
		Usage: fmt.Sprintf("set log level. Possible: %v", strings.Join(maps.Keys(internal.LogLevels), ",")),
	},
	&cli.BoolFlag{Name: requireCcelFlag, Usage: "reject TDX evidence without CC eventlog"},
	&cli.BoolFlag{Name: requireAaelFlag, Usage: "reject TDX evidence without AA eventlog"},
	&cli.BoolFlag{Name: getCollateralFlag, Usage: "fetch DCAP collateral from the Intel PCS"},
	&cli.BoolFlag{Name: checkRevocationsFlag, Usage: "check PCK certificate revocation"},
	&cli.StringFlag{Name: storeFlag, Usage: "reference value store: memory or sqlite (default: memory)"},
	&cli.StringFlag{Name: sqlitePathFlag, Usage: "SQLite3 reference value database (default: rvps.db)"},
	&cli.StringFlag{Name: tokenKeyFlag, Usage: "PEM private key for attestation tokens (default: ephemeral key)"},
	&cli.StringFlag{Name: authTokenFlag, Usage: "file containing the bearer token for reference value registration"},
	&cli.BoolFlag{Name: debugFlag, Usage: "activate GIN debug mode"},
}

func getConfig(cmd *cli.Command) (*config, error) {
	var err error

	// Create default configuration
	c := &config{
		Addr:     "localhost:8080",
		LogLevel: "info",
		Rvps: RvpsConfig{
			Store:      storeMemory,
			SqlitePath: "rvps.db",
		},
	}

	// Obtain custom configuration from file if specified
	if cmd.IsSet(configFlag) {
		configFile := cmd.String(configFlag)
		log.Infof("Loading config from file %v", configFile)
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %v: %w", configFile, err)
		}
		err = json.Unmarshal(data, c)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}

		// Paths in the config file are relative to the config file
		base := filepath.Dir(configFile)
		c.Rvps.SqlitePath = internal.GetFilePath(c.Rvps.SqlitePath, base)
		if c.TokenKey != "" {
			c.TokenKey = internal.GetFilePath(c.TokenKey, base)
		}
		if c.AuthToken != "" {
			c.AuthToken = internal.GetFilePath(c.AuthToken, base)
		}
	}

	// Overwrite config file configuration with given command line arguments
	if cmd.IsSet(addrFlag) {
		c.Addr = cmd.String(addrFlag)
	}
	if cmd.IsSet(logLevelFlag) {
		c.LogLevel = cmd.String(logLevelFlag)
	}
	if cmd.IsSet(requireCcelFlag) {
		c.RequireCcel = cmd.Bool(requireCcelFlag)
	}
	if cmd.IsSet(requireAaelFlag) {
		c.RequireAael = cmd.Bool(requireAaelFlag)
	}
	if cmd.IsSet(getCollateralFlag) {
		c.Dcap.GetCollateral = cmd.Bool(getCollateralFlag)
	}
	if cmd.IsSet(checkRevocationsFlag) {
		c.Dcap.CheckRevocations = cmd.Bool(checkRevocationsFlag)
	}
	if cmd.IsSet(storeFlag) {
		c.Rvps.Store = cmd.String(storeFlag)
	}
	if cmd.IsSet(sqlitePathFlag) {
		c.Rvps.SqlitePath = cmd.String(sqlitePathFlag)
	}
	if cmd.IsSet(tokenKeyFlag) {
		c.TokenKey = cmd.String(tokenKeyFlag)
	}
	if cmd.IsSet(authTokenFlag) {
		c.AuthToken = cmd.String(authTokenFlag)
	}
	if cmd.IsSet(debugFlag) {
		c.Debug = cmd.Bool(debugFlag)
	}

	// Configure the logger
	l, ok := internal.LogLevels[strings.ToLower(c.LogLevel)]
	if !ok {
		return nil, fmt.Errorf("log level %v does not exist", c.LogLevel)
	}
	logrus.SetLevel(l)

	if err := c.check(); err != nil {
		return nil, err
	}

	// Convert file paths to absolute paths
	c.Rvps.SqlitePath, err = filepath.Abs(c.Rvps.SqlitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get path for database: %w", err)
	}
	if c.TokenKey != "" {
		c.TokenKey, err = filepath.Abs(c.TokenKey)
		if err != nil {
			return nil, fmt.Errorf("failed to get path for token key: %w", err)
		}
	}
	if c.AuthToken != "" {
		c.AuthToken, err = filepath.Abs(c.AuthToken)
		if err != nil {
			return nil, fmt.Errorf("failed to get path for authorization token: %w", err)
		}
	}

	printConfig(c)

	return c, nil
}

func (c *config) check() error {
	switch c.Rvps.Store {
	case storeMemory, storeSqlite:
	default:
		return fmt.Errorf("unknown reference value store %q (supported: %v, %v)",
			c.Rvps.Store, storeMemory, storeSqlite)
	}
	if c.Addr == "" {
		return fmt.Errorf("no listen address configured")
	}
	return nil
}

func (c *config) verifierConfig() *verifier.Config {
	return &verifier.Config{
		RequireCcel: c.RequireCcel,
		RequireAael: c.RequireAael,
		Dcap:        c.Dcap,
	}
}

func printConfig(c *config) {
	wd, err := os.Getwd()
	if err != nil {
		log.Warnf("Failed to get working directory: %v", err)
	}
	log.Debugf("Running asd from working directory %v", wd)

	log.Debugf("Using the following configuration:")
	log.Debugf("\tListen address       : %v", c.Addr)
	log.Debugf("\tLogging level        : %v", c.LogLevel)
	log.Debugf("\tRequire CC eventlog  : %v", c.RequireCcel)
	log.Debugf("\tRequire AA eventlog  : %v", c.RequireAael)
	log.Debugf("\tDCAP get collateral  : %v", c.Dcap.GetCollateral)
	log.Debugf("\tDCAP revocations     : %v", c.Dcap.CheckRevocations)
	log.Debugf("\tReference value store: %v", c.Rvps.Store)
	if c.Rvps.Store == storeSqlite {
		log.Debugf("\tSQLite database      : %v", c.Rvps.SqlitePath)
	}
	log.Debugf("\tToken key            : %v", c.TokenKey)
	log.Debugf("\tAuthorization token  : %v", c.AuthToken)
	log.Debugf("\tGIN Debug            : %v", c.Debug)
}
