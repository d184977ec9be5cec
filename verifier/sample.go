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
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SampleEvidence is the unsigned evidence of the sample TEE used for testing
// without hardware
type SampleEvidence struct {
	Svn string `json:"svn"`
	// Base64 encoded report data and init data hash
	ReportData string `json:"report_data"`
	InitData   string `json:"init_data,omitempty"`
}

type Sample struct{}

func NewSample() *Sample {
	return &Sample{}
}

func (s *Sample) Evaluate(evidence json.RawMessage, expectedReportData, expectedInitDataHash ExpectedValue,
) (Claims, string, error) {
	var e SampleEvidence
	if err := json.Unmarshal(evidence, &e); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal sample evidence: %w", err)
	}

	reportData, err := decodeSampleField(e.ReportData, REPORT_DATA_SIZE, "report data")
	if err != nil {
		return nil, "", err
	}
	initData, err := decodeSampleField(e.InitData, MR_SIZE, "init data")
	if err != nil {
		return nil, "", err
	}

	if err := CheckBinding(expectedReportData, reportData, "REPORT_DATA", "Sample"); err != nil {
		return nil, "", err
	}
	if err := CheckBinding(expectedInitDataHash, initData, "INIT_DATA", "Sample"); err != nil {
		return nil, "", err
	}

	return Claims{
		"svn":         e.Svn,
		"report_data": hex.EncodeToString(reportData),
		"init_data":   hex.EncodeToString(initData),
	}, ClassCpu, nil
}

// decodeSampleField decodes a base64 field and pads it to the field width
func decodeSampleField(s string, width int, name string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sample %v: %w", name, err)
	}
	if len(b) > width {
		return nil, fmt.Errorf("sample %v has %v bytes, maximum is %v", name, len(b), width)
	}
	ret := make([]byte, width)
	copy(ret, b)
	return ret, nil
}
