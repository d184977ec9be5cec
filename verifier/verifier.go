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

// Package verifier verifies TEE evidence and turns it into claims. Every TEE
// variant implements the Verifier interface, variants are selected by their
// tag through a flat dispatch table.
package verifier

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
)

var log = logrus.WithField("service", "verifier")

type Tee string

const (
	TeeTdx    Tee = "tdx"
	TeeSample Tee = "sample"
)

// ClassCpu is the evidence class of CPU based TEEs
const ClassCpu = "cpu"

// Claims is the nested claim document produced by a verification. Values are
// scalars, nested maps or lists.
type Claims map[string]any

// Verifier verifies evidence of one TEE variant. The expected values bind the
// freshness nonce (report data) and the init data hash to the evidence.
// On failure no claims are returned.
type Verifier interface {
	Evaluate(evidence json.RawMessage, expectedReportData, expectedInitDataHash ExpectedValue) (Claims, string, error)
}

type Config struct {
	// RequireCcel and RequireAael turn a missing eventlog from a
	// reduced-assurance warning into a verification failure
	RequireCcel bool       `json:"requireCcel"`
	RequireAael bool       `json:"requireAael"`
	Dcap        DcapConfig `json:"dcap"`
}

var verifiers = map[Tee]func(c *Config) Verifier{
	TeeTdx: func(c *Config) Verifier {
		return NewTdx(c, NewDcapVerifier(c.Dcap))
	},
	TeeSample: func(c *Config) Verifier {
		return NewSample()
	},
}

// New returns the verifier for the given TEE
func New(tee Tee, c *Config) (Verifier, error) {
	f, ok := verifiers[tee]
	if !ok {
		return nil, fmt.Errorf("unsupported TEE %q (supported: %v)", tee, Tees())
	}
	if c == nil {
		c = &Config{}
	}
	return f(c), nil
}

// Tees returns the supported TEE tags in sorted order
func Tees() []Tee {
	tees := maps.Keys(verifiers)
	slices.Sort(tees)
	return tees
}
