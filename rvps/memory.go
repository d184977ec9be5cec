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
	"slices"
	"sync"

	"k8s.io/utils/clock"
)

// MemoryStore is a Store kept in process memory. Snapshots may run
// concurrently, ingestion is exclusive.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]ReferenceValue
	clock  clock.PassiveClock
}

func NewMemoryStore(clk clock.PassiveClock) *MemoryStore {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MemoryStore{
		values: make(map[string][]ReferenceValue),
		clock:  clk,
	}
}

func (s *MemoryStore) Ingest(name string, rvs []ReferenceValue) error {
	if err := checkIngest(name, rvs); err != nil {
		return err
	}

	// Prepared outside the lock, so the critical section is the swap only
	entry := make([]ReferenceValue, len(rvs))
	for i, rv := range rvs {
		rv.Value = slices.Clone(rv.Value)
		entry[i] = rv
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(entry) == 0 {
		delete(s.values, name)
	} else {
		s.values[name] = entry
	}

	log.Tracef("Stored %v reference values for %v", len(entry), name)

	return nil
}

func (s *MemoryStore) Snapshot() (map[string][]string, error) {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	digests := make(map[string][]string, len(s.values))
	for name, rvs := range s.values {
		for i := range rvs {
			if rvs[i].Expired(now) {
				log.Tracef("Skipping expired reference value %v (expired %v)", name, rvs[i].Expiration)
				continue
			}
			digests[name] = append(digests[name], rvs[i].Value...)
		}
	}

	return digests, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
