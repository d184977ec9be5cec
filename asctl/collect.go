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
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/go-configfs-tsm/configfs/linuxtsm"
	"github.com/google/go-configfs-tsm/report"
	"github.com/urfave/cli/v3"

	"github.com/Fraunhofer-AISEC/attestation-service/internal"
	"github.com/Fraunhofer-AISEC/attestation-service/verifier"
)

const (
	DEFAULT_CCEL_ACPI_TABLE = "/sys/firmware/acpi/tables/data/CCEL"

	reportDataFlag = "report-data"
	ccelFlag       = "ccel"
	aaelFlag       = "aael"
	outFlag        = "out"
)

var collectCommand = &cli.Command{
	Name:  "collect",
	Usage: "Generates a TDX quote through configfs-tsm and bundles it with the eventlogs as evidence",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: reportDataFlag, Usage: "hex encoded report data (nonce), at most 64 bytes"},
		&cli.StringFlag{Name: ccelFlag, Usage: "CC eventlog ACPI table path, empty to omit", Value: DEFAULT_CCEL_ACPI_TABLE},
		&cli.StringFlag{Name: aaelFlag, Usage: "attestation-agent eventlog path"},
		&cli.StringFlag{Name: outFlag, Usage: "evidence output file (default: stdout)"},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		reportData, err := hex.DecodeString(cmd.String(reportDataFlag))
		if err != nil {
			return fmt.Errorf("invalid report data: %w", err)
		}
		reportData, err = verifier.Regularize(reportData, verifier.REPORT_DATA_SIZE, "REPORT_DATA", "TDX")
		if err != nil {
			return err
		}

		log.Info("Generating TDX quote")

		resp, err := linuxtsm.GetReport(&report.Request{
			InBlob:     reportData,
			GetAuxBlob: false,
		})
		if err != nil {
			return fmt.Errorf("failed to get TDX quote via configfs: %w", err)
		}

		ccel := cmd.String(ccelFlag)
		if ccel == DEFAULT_CCEL_ACPI_TABLE && !internal.FileExists(ccel) {
			log.Warnf("No CC eventlog found at %v, collecting evidence without it", ccel)
			ccel = ""
		}

		evidence, err := buildEvidence(resp.OutBlob, ccel, cmd.String(aaelFlag))
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(evidence, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal evidence: %w", err)
		}
		return output(cmd.String(outFlag), data)
	},
}

// buildEvidence bundles a raw quote with the eventlogs at the given paths.
// Empty paths are omitted.
func buildEvidence(quote []byte, ccelPath, aaelPath string) (*verifier.TdxEvidence, error) {
	evidence := &verifier.TdxEvidence{
		Quote: base64.StdEncoding.EncodeToString(quote),
	}

	if ccelPath != "" {
		data, err := os.ReadFile(ccelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CC eventlog: %w", err)
		}
		ccel := base64.StdEncoding.EncodeToString(data)
		evidence.CcEventlog = &ccel
		log.Debugf("Added CC eventlog %v (%v bytes)", ccelPath, len(data))
	}

	if aaelPath != "" {
		data, err := os.ReadFile(aaelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read AA eventlog: %w", err)
		}
		aael := string(data)
		evidence.AaEventlog = &aael
		log.Debugf("Added AA eventlog %v (%v bytes)", aaelPath, len(data))
	}

	return evidence, nil
}
