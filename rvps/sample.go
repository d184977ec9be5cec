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
	"slices"

	"golang.org/x/exp/maps"
	"k8s.io/utils/clock"
)

// sampleValidityMonths is the validity of reference values from sample provenance
const sampleValidityMonths = 12

// SampleExtractor accepts unverified provenance of the form
// {"<name>": ["<digest>", ...]}. It exists for testing deployments without a
// supply chain.
type SampleExtractor struct {
	clock clock.PassiveClock
}

func NewSampleExtractor(clk clock.PassiveClock) *SampleExtractor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &SampleExtractor{clock: clk}
}

func (e *SampleExtractor) VerifyAndExtract(provenance string) ([]ReferenceValue, error) {
	var payload map[string][]string
	if err := json.Unmarshal([]byte(provenance), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sample provenance: %w", err)
	}

	expiration := e.clock.Now().AddDate(0, sampleValidityMonths, 0).UTC()

	names := maps.Keys(payload)
	slices.Sort(names)

	rvs := make([]ReferenceValue, 0, len(names))
	for _, name := range names {
		rv := ReferenceValue{
			Version:    ReferenceValueVersion,
			Name:       name,
			Expiration: expiration,
			Value:      slices.Clone(payload[name]),
		}
		if err := rv.validate(); err != nil {
			return nil, err
		}
		rvs = append(rvs, rv)
	}

	log.Debugf("Extracted %v sample reference values", len(rvs))

	return rvs, nil
}
