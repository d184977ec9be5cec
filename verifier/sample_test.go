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
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

func sampleEvidence(t *testing.T, reportData, initData []byte) json.RawMessage {
	data, err := json.Marshal(SampleEvidence{
		Svn:        "1",
		ReportData: base64.StdEncoding.EncodeToString(reportData),
		InitData:   base64.StdEncoding.EncodeToString(initData),
	})
	if err != nil {
		t.Fatalf("failed to marshal sample evidence: %v", err)
	}
	return data
}

func TestSampleEvaluate(t *testing.T) {
	evidence := sampleEvidence(t, []byte("nonce"), bytes.Repeat([]byte{0x01}, 48))

	tests := []struct {
		name       string
		evidence   json.RawMessage
		reportData ExpectedValue
		initData   ExpectedValue
		wantErr    error
		wantAnyErr bool
	}{
		{"Any", evidence, Any(), Any(), nil, false},
		{"Bound Nonce", evidence, Value([]byte("nonce")), Any(), nil, false},
		{"Bound Init Data", evidence, Any(), Value(bytes.Repeat([]byte{0x01}, 48)), nil, false},
		{"Wrong Nonce", evidence, Value([]byte("other")), Any(), ErrBindingMismatch, false},
		{"Wrong Init Data", evidence, Any(), Value([]byte{0x02}), ErrBindingMismatch, false},
		{"Report Data Too Long", sampleEvidence(t, make([]byte, 65), nil), Any(), Any(), nil, true},
		{"Invalid Base64", json.RawMessage(`{"svn": "1", "report_data": "!"}`), Any(), Any(), nil, true},
		{"Invalid JSON", json.RawMessage(`"x"`), Any(), Any(), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, class, err := NewSample().Evaluate(tt.evidence, tt.reportData, tt.initData)
			wantErr := tt.wantAnyErr || tt.wantErr != nil
			if (err != nil) != wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, wantErr)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Evaluate() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && (class != ClassCpu || claims["svn"] != "1") {
				t.Errorf("Evaluate() = %v, %v", claims, class)
			}
		})
	}
}
