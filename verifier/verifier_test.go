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
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		tee     Tee
		want    any
		wantErr bool
	}{
		{"TDX", TeeTdx, &Tdx{}, false},
		{"Sample", TeeSample, &Sample{}, false},
		{"Unknown", Tee("snp"), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(tt.tee, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			switch tt.want.(type) {
			case *Tdx:
				if _, ok := got.(*Tdx); !ok {
					t.Errorf("New() = %T, want *Tdx", got)
				}
			case *Sample:
				if _, ok := got.(*Sample); !ok {
					t.Errorf("New() = %T, want *Sample", got)
				}
			}
		})
	}
}

func TestTees(t *testing.T) {
	tees := Tees()
	if len(tees) != 2 || tees[0] != TeeSample || tees[1] != TeeTdx {
		t.Errorf("Tees() = %v, want [sample tdx]", tees)
	}
}
