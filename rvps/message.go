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

package rvps

import (
	"encoding/json"
	"fmt"
)

// MessageVersion is the only supported version of the registration message
const MessageVersion = "0.1.0"

// Message is the registration envelope submitted to the service. Type selects
// the extractor, Payload is the provenance in the extractor's own format.
type Message struct {
	Version string `json:"version"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

// ParseMessage parses and validates a registration message
func ParseMessage(s string) (*Message, error) {
	m := &Message{Version: MessageVersion}
	if err := json.Unmarshal([]byte(s), m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if m.Version != MessageVersion {
		return nil, fmt.Errorf("%w: message version %q, supported %q",
			ErrVersionMismatch, m.Version, MessageVersion)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("message does not specify a provenance type")
	}
	return m, nil
}
