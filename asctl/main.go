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
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.org/x/exp/maps"

	"github.com/Fraunhofer-AISEC/attestation-service/internal"
)

const (
	logLevelFlag = "log-level"
	addrFlag     = "addr"
	cborFlag     = "cbor"
)

var log = logrus.WithField("service", "asctl")

// Flags shared by all commands talking to the service
var serviceFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  addrFlag,
		Usage: "attestation service base URL",
		Value: "http://localhost:8080",
	},
	&cli.BoolFlag{
		Name:  cborFlag,
		Usage: "use CBOR instead of JSON on the wire",
	},
}

func main() {
	cmd := &cli.Command{
		Name:    "asctl",
		Usage:   "Collects TDX evidence and talks to the attestation service",
		Version: internal.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  logLevelFlag,
				Usage: fmt.Sprintf("set log level. Possible: %v", strings.Join(maps.Keys(internal.LogLevels), ",")),
				Value: "info",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			l, ok := internal.LogLevels[strings.ToLower(cmd.String(logLevelFlag))]
			if !ok {
				return ctx, fmt.Errorf("log level %v does not exist", cmd.String(logLevelFlag))
			}
			logrus.SetLevel(l)
			return ctx, nil
		},
		Commands: []*cli.Command{
			collectCommand,
			evaluateCommand,
			registerCommand,
			digestsCommand,
			quoteCommand,
			schemaCommand,
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// output writes data to the file at path, or to stdout if path is empty
func output(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %v: %w", path, err)
	}
	log.Infof("Wrote %v", path)
	return nil
}
