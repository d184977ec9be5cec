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

// Package rvps implements the reference value provider service: provenance
// extraction, reference value storage and the digest snapshot read by
// policy evaluation.
package rvps

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "rvps")

// ReferenceValueVersion is the version written into reference values whose
// provenance format carries no version of its own
const ReferenceValueVersion = "0.1.0"

// ReferenceValue is a set of accepted digests for one named artifact
type ReferenceValue struct {
	Version    string    `json:"version" cbor:"0,keyasint"`
	Name       string    `json:"name" cbor:"1,keyasint"`
	Expiration time.Time `json:"expired" cbor:"2,keyasint"`
	Value      []string  `json:"value" cbor:"3,keyasint"`
}

// Expired reports whether the reference value expired before now
func (rv *ReferenceValue) Expired(now time.Time) bool {
	return now.After(rv.Expiration)
}

func (rv *ReferenceValue) validate() error {
	if rv.Name == "" {
		return fmt.Errorf("reference value without name")
	}
	if len(rv.Value) == 0 {
		return fmt.Errorf("reference value %v without digests", rv.Name)
	}
	if rv.Expiration.IsZero() {
		return fmt.Errorf("reference value %v without expiration", rv.Name)
	}
	return nil
}
