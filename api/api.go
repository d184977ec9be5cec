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

// Contains the API definitions of the attestation service HTTP API. Bodies
// are JSON or CBOR, selected through the Content-Type and Accept headers.
package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Fraunhofer-AISEC/attestation-service/verifier"
)

const (
	EndpointAttestation = "/attestation"
	EndpointRegister    = "/rvps/register"
	EndpointDigests     = "/rvps/digests"
	EndpointVersion     = "/version"
)

const (
	// Set maximum request body length to 10 MB
	MaxMsgLen = 1024 * 1024 * 10
)

type AttestationRequest struct {
	Tee      verifier.Tee    `json:"tee" cbor:"0,keyasint"`
	Evidence json.RawMessage `json:"evidence" cbor:"1,keyasint"`
	// RuntimeData and InitData are hex encoded. Empty values accept any
	// report data or init data hash in the evidence.
	RuntimeData string `json:"runtime_data,omitempty" cbor:"2,keyasint,omitempty"`
	InitData    string `json:"init_data,omitempty" cbor:"3,keyasint,omitempty"`
}

type AttestationResponse struct {
	Claims verifier.Claims `json:"claims" cbor:"0,keyasint"`
	Class  string          `json:"class" cbor:"1,keyasint"`
	Token  string          `json:"token,omitempty" cbor:"2,keyasint,omitempty"`
}

type RegisterRequest struct {
	Message string `json:"message" cbor:"0,keyasint"`
}

type DigestsResponse struct {
	Digests map[string][]string `json:"digests" cbor:"0,keyasint"`
}

type VersionResponse struct {
	Version string `json:"version" cbor:"0,keyasint"`
}

type ErrorResponse struct {
	Message string `json:"message" cbor:"0,keyasint"`
}

// Expected returns the binding values for the report data and the init data
// hash of the request
func (r *AttestationRequest) Expected() (verifier.ExpectedValue, verifier.ExpectedValue, error) {
	reportData, err := expectedFromHex(r.RuntimeData)
	if err != nil {
		return verifier.ExpectedValue{}, verifier.ExpectedValue{}, fmt.Errorf("invalid runtime_data: %w", err)
	}
	initData, err := expectedFromHex(r.InitData)
	if err != nil {
		return verifier.ExpectedValue{}, verifier.ExpectedValue{}, fmt.Errorf("invalid init_data: %w", err)
	}
	return reportData, initData, nil
}

func expectedFromHex(s string) (verifier.ExpectedValue, error) {
	if s == "" {
		return verifier.Any(), nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return verifier.ExpectedValue{}, err
	}
	return verifier.Value(b), nil
}
