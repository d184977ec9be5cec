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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"
)

func TestSampleExtractor(t *testing.T) {
	tests := []struct {
		name       string
		provenance string
		want       []ReferenceValue
		wantErr    bool
	}{
		{
			name:       "Success",
			provenance: `{"kernel": ["aa", "bb"], "initrd": ["cc"]}`,
			want: []ReferenceValue{
				{Version: "0.1.0", Name: "initrd", Expiration: testStart.AddDate(1, 0, 0), Value: []string{"cc"}},
				{Version: "0.1.0", Name: "kernel", Expiration: testStart.AddDate(1, 0, 0), Value: []string{"aa", "bb"}},
			},
		},
		{
			name:       "Empty",
			provenance: `{}`,
			want:       []ReferenceValue{},
		},
		{
			name:       "No digests",
			provenance: `{"kernel": []}`,
			wantErr:    true,
		},
		{
			name:       "Malformed",
			provenance: `["kernel"]`,
			wantErr:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewSampleExtractor(testclock.NewFakePassiveClock(testStart))
			got, err := e.VerifyAndExtract(tt.provenance)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
