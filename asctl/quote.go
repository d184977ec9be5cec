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
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/go-tdx-guest/abi"
	pb "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/urfave/cli/v3"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/Fraunhofer-AISEC/attestation-service/eventlog"
	"github.com/Fraunhofer-AISEC/attestation-service/internal"
	"github.com/Fraunhofer-AISEC/attestation-service/verifier"
)

const (
	rawFlag    = "raw"
	protoFlag  = "proto"
	replayFlag = "replay"
	certsFlag  = "certs"
)

var quoteCommand = &cli.Command{
	Name:      "quote",
	Usage:     "Decodes a TDX quote from an evidence file or a raw quote",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: rawFlag, Usage: "the file contains the raw binary quote instead of evidence"},
		&cli.BoolFlag{Name: protoFlag, Usage: "print the go-tdx-guest protobuf representation"},
		&cli.BoolFlag{Name: replayFlag, Usage: "replay the eventlogs of the evidence against the RTMRs"},
		&cli.StringFlag{Name: certsFlag, Usage: "directory to dump the PCK certificate chain to"},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() != 1 {
			return fmt.Errorf("expected exactly one file argument")
		}
		data, err := os.ReadFile(cmd.Args().First())
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		var raw []byte
		var evidence *verifier.TdxEvidence
		if cmd.Bool(rawFlag) {
			raw = data
		} else {
			evidence = new(verifier.TdxEvidence)
			if err := json.Unmarshal(data, evidence); err != nil {
				return fmt.Errorf("failed to unmarshal evidence: %w", err)
			}
			raw, err = base64.StdEncoding.DecodeString(evidence.Quote)
			if err != nil {
				return fmt.Errorf("failed to decode quote: %w", err)
			}
		}

		if cmd.Bool(protoFlag) {
			s, err := quoteProtoJson(raw)
			if err != nil {
				return err
			}
			return output("", s)
		}

		quote, err := verifier.DecodeTdxQuote(raw)
		if err != nil {
			return fmt.Errorf("failed to decode quote: %w", err)
		}
		if err := output("", []byte(quote.String())); err != nil {
			return err
		}

		if dir := cmd.String(certsFlag); dir != "" {
			if err := dumpCerts(quote, dir); err != nil {
				return err
			}
		}

		if cmd.Bool(replayFlag) {
			if evidence == nil {
				return fmt.Errorf("replay requires evidence, not a raw quote")
			}
			return replay(quote, evidence)
		}
		return nil
	},
}

// quoteProtoJson converts the quote with go-tdx-guest and renders the
// protobuf as JSON
func quoteProtoJson(raw []byte) ([]byte, error) {
	q, err := abi.QuoteToProto(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert quote: %w", err)
	}
	q4, ok := q.(*pb.QuoteV4)
	if !ok {
		return nil, fmt.Errorf("unsupported quote type %T", q)
	}
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(q4)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quote: %w", err)
	}
	return data, nil
}

// replay replays the eventlogs of the evidence and reports the result per
// register without checking the quote signature
func replay(quote *verifier.TdxQuote, evidence *verifier.TdxEvidence) error {
	rtmrs := quote.Rtmrs()

	if evidence.CcEventlog != nil {
		data, err := base64.StdEncoding.DecodeString(*evidence.CcEventlog)
		if err != nil {
			return fmt.Errorf("failed to decode CC eventlog: %w", err)
		}
		l, err := eventlog.ParseCcel(data)
		if err != nil {
			return fmt.Errorf("failed to parse CC eventlog: %w", err)
		}
		if err := eventlog.ReplayAndMatch(l, eventlog.TdxReferenceMeasurements(rtmrs)); err != nil {
			log.Warnf("CC eventlog replay failed: %v", err)
		} else {
			log.Infof("CC eventlog with %v events matches RTMR0-3", len(l))
		}
	}

	if evidence.AaEventlog != nil {
		aael, err := eventlog.ParseAael(*evidence.AaEventlog)
		if err != nil {
			return fmt.Errorf("failed to parse AA eventlog: %w", err)
		}
		if err := aael.IntegrityCheck(rtmrs[3]); err != nil {
			log.Warnf("AA eventlog replay failed: %v", err)
		} else {
			log.Infof("AA eventlog with %v events matches RTMR3", len(aael.Events))
		}
	}

	return nil
}

// dumpCerts writes the PEM encoded PCK certificate chain of the quote to dir
func dumpCerts(quote *verifier.TdxQuote, dir string) error {
	certs, err := quote.PckCertChain()
	if err != nil {
		return fmt.Errorf("failed to parse PCK certificate chain: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	for name, cert := range map[string]*x509.Certificate{
		"pck.pem":          certs.PCKCert,
		"intermediate.pem": certs.IntermediateCert,
		"ca.pem":           certs.RootCACert,
	} {
		if cert == nil {
			continue
		}
		if err := output(filepath.Join(dir, name), internal.WriteCertPem(cert)); err != nil {
			return err
		}
	}

	return nil
}
