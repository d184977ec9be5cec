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
	"errors"
	"fmt"
	"slices"

	"golang.org/x/exp/maps"
	"k8s.io/utils/clock"
)

var (
	ErrVersionMismatch    = errors.New("unsupported provenance version")
	ErrMissingLayout      = errors.New("no layout found in provenance")
	ErrVerificationFailed = errors.New("provenance verification failed")
	ErrUnknownType        = errors.New("unknown provenance type")
)

const (
	TypeInToto = "in-toto"
	TypeSample = "sample"
)

// Extractor verifies a provenance document of one format and extracts the
// reference values it vouches for
type Extractor interface {
	VerifyAndExtract(provenance string) ([]ReferenceValue, error)
}

// Extractors dispatches provenance documents by their message type
type Extractors map[string]Extractor

// DefaultExtractors returns all supported extractors. The clock determines
// the expiration of reference values for formats without own expiry.
func DefaultExtractors(clk clock.PassiveClock) Extractors {
	return Extractors{
		TypeInToto: NewInTotoExtractor(nil),
		TypeSample: NewSampleExtractor(clk),
	}
}

// VerifyAndExtract runs the extractor registered for typ
func (e Extractors) VerifyAndExtract(typ, provenance string) ([]ReferenceValue, error) {
	ex, ok := e[typ]
	if !ok {
		return nil, fmt.Errorf("%w %q (supported: %v)", ErrUnknownType, typ, e.Types())
	}
	rvs, err := ex.VerifyAndExtract(provenance)
	if err != nil {
		return nil, fmt.Errorf("%v extractor: %w", typ, err)
	}
	return rvs, nil
}

// Types returns the registered provenance types in sorted order
func (e Extractors) Types() []string {
	types := maps.Keys(e)
	slices.Sort(types)
	return types
}
