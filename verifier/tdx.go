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

package verifier

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Fraunhofer-AISEC/attestation-service/eventlog"
)

// TdxEvidence is the evidence of a TDX guest
type TdxEvidence struct {
	// Base64 encoded TD quote
	Quote string `json:"quote"`
	// Base64 encoded CC eventlog ACPI table data
	CcEventlog *string `json:"cc_eventlog,omitempty"`
	// Eventlog of the attestation agent
	AaEventlog *string `json:"aa_eventlog,omitempty"`
}

type Tdx struct {
	config        Config
	quoteVerifier QuoteVerifier
}

func NewTdx(c *Config, qv QuoteVerifier) *Tdx {
	return &Tdx{config: *c, quoteVerifier: qv}
}

func (tdx *Tdx) Evaluate(evidence json.RawMessage, expectedReportData, expectedInitDataHash ExpectedValue,
) (Claims, string, error) {
	var e TdxEvidence
	if err := json.Unmarshal(evidence, &e); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal TDX evidence: %w", err)
	}

	claims, err := tdx.verifyEvidence(&e, expectedReportData, expectedInitDataHash)
	if err != nil {
		return nil, "", fmt.Errorf("TDX verifier: %w", err)
	}

	return claims, ClassCpu, nil
}

func (tdx *Tdx) verifyEvidence(e *TdxEvidence, expectedReportData, expectedInitDataHash ExpectedValue,
) (Claims, error) {
	if e.Quote == "" {
		return nil, errors.New("TDX quote is empty")
	}
	raw, err := base64.StdEncoding.DecodeString(e.Quote)
	if err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}

	quote, err := DecodeTdxQuote(raw)
	if err != nil {
		return nil, err
	}
	log.Trace(quote)

	custom, err := tdx.quoteVerifier.VerifyQuote(raw, quote)
	if err != nil {
		return nil, fmt.Errorf("quote signature verification failed: %w", err)
	}
	log.Info("Quote signature check succeeded")

	if err := CheckBinding(expectedReportData, quote.ReportData(), "REPORT_DATA", "TDX"); err != nil {
		return nil, err
	}
	if err := CheckBinding(expectedInitDataHash, quote.MrConfigId(), "MRCONFIGID", "TDX"); err != nil {
		return nil, err
	}
	log.Info("REPORT_DATA and MRCONFIGID checks succeeded")

	ccel, err := tdx.verifyCcel(e.CcEventlog, quote)
	if err != nil {
		return nil, err
	}

	aael, err := tdx.verifyAael(e.AaEventlog, quote)
	if err != nil {
		return nil, err
	}

	claims, err := BuildTdxClaims(quote, ccel, aael, custom)
	if err != nil {
		return nil, fmt.Errorf("failed to build claims: %w", err)
	}

	return claims, nil
}

// verifyCcel replays the firmware eventlog against RTMR0..3. A missing log
// returns a nil log.
func (tdx *Tdx) verifyCcel(encoded *string, quote *TdxQuote) (eventlog.Log, error) {
	if encoded == nil || *encoded == "" {
		if tdx.config.RequireCcel {
			return nil, errors.New("no CC eventlog included inside the TDX evidence")
		}
		log.Warn("No CC eventlog included inside the TDX evidence")
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(*encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode CC eventlog: %w", err)
	}
	ccel, err := eventlog.ParseCcel(data)
	if err != nil {
		return nil, err
	}
	if err := eventlog.ReplayAndMatch(ccel, eventlog.TdxReferenceMeasurements(quote.Rtmrs())); err != nil {
		return nil, fmt.Errorf("CC eventlog integrity check failed: %w", err)
	}
	log.Info("CC eventlog integrity check succeeded")

	return ccel, nil
}

// verifyAael replays the attestation-agent eventlog against RTMR3, separately
// from the firmware eventlog
func (tdx *Tdx) verifyAael(text *string, quote *TdxQuote) (*eventlog.Aael, error) {
	if text == nil || *text == "" {
		if tdx.config.RequireAael {
			return nil, errors.New("no AA eventlog included inside the TDX evidence")
		}
		log.Warn("No AA eventlog included inside the TDX evidence")
		return nil, nil
	}

	aael, err := eventlog.ParseAael(*text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AA eventlog: %w", err)
	}
	if err := aael.IntegrityCheck(quote.Body.RtMr3[:]); err != nil {
		return nil, fmt.Errorf("AA eventlog integrity check failed: %w", err)
	}
	log.Info("AA eventlog integrity check succeeded")

	return aael, nil
}
