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
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/Fraunhofer-AISEC/attestation-service/internal"
)

var log = logrus.WithField("service", "asd")

func main() {
	cmd := &cli.Command{
		Name:    "asd",
		Usage:   "Attestation service: verifies TEE evidence and manages reference values",
		Version: internal.GetVersion(),
		Flags:   flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, cmd)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.Run(ctx, os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {

	log.Infof("Starting asd %v", internal.GetVersion())

	c, err := getConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	s, err := newServer(c)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer s.close()

	return s.serve(ctx)
}
