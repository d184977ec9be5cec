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
	"fmt"
	"slices"

	"golang.org/x/exp/maps"
)

// Rvps registers provenance and serves the resulting reference digests
type Rvps struct {
	extractors Extractors
	store      Store
}

func New(extractors Extractors, store Store) *Rvps {
	return &Rvps{
		extractors: extractors,
		store:      store,
	}
}

// VerifyAndExtract verifies the provenance carried by a registration message
// and replaces the stored reference values of every artifact it names.
// Artifacts not named by the message keep their values.
func (r *Rvps) VerifyAndExtract(message string) error {
	m, err := ParseMessage(message)
	if err != nil {
		return err
	}

	log.Debugf("Registering %v provenance", m.Type)

	rvs, err := r.extractors.VerifyAndExtract(m.Type, m.Payload)
	if err != nil {
		return err
	}

	byName := make(map[string][]ReferenceValue)
	for _, rv := range rvs {
		byName[rv.Name] = append(byName[rv.Name], rv)
	}

	names := maps.Keys(byName)
	slices.Sort(names)
	for _, name := range names {
		if err := r.store.Ingest(name, byName[name]); err != nil {
			return fmt.Errorf("failed to store reference values for %v: %w", name, err)
		}
		log.Debugf("Registered %v reference values for %v", len(byName[name]), name)
	}

	log.Infof("Registered %v provenance with %v artifacts", m.Type, len(names))

	return nil
}

// GetDigests returns the digests of all unexpired reference values by name
func (r *Rvps) GetDigests() (map[string][]string, error) {
	digests, err := r.store.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to read reference values: %w", err)
	}
	return digests, nil
}

func (r *Rvps) Close() error {
	return r.store.Close()
}
