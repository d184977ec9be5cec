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
)

// Store holds the accepted reference values by artifact name. Ingest replaces
// all values of a name. Snapshot returns the digests of all values that have
// not expired at the time of the call.
type Store interface {
	Ingest(name string, rvs []ReferenceValue) error
	Snapshot() (map[string][]string, error)
	Close() error
}

// StoreError reports a failure of the storage backend
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("reference value store %v: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func checkIngest(name string, rvs []ReferenceValue) error {
	for i := range rvs {
		if rvs[i].Name != name {
			return fmt.Errorf("reference value %v ingested as %v", rvs[i].Name, name)
		}
	}
	return nil
}
