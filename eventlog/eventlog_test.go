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

package eventlog

import (
	"bytes"
	"crypto"
	"crypto/sha512"
	"errors"
	"testing"
)

var (
	entryA = bytes.Repeat([]byte{0x01}, 48)
	entryB = bytes.Repeat([]byte{0x02}, 48)
)

func chain(digests ...[]byte) []byte {
	acc := make([]byte, 48)
	for _, d := range digests {
		h := sha512.Sum384(append(append([]byte{}, acc...), d...))
		acc = h[:]
	}
	return acc
}

func sha384Entry(index uint32, digest []byte) Entry {
	return Entry{Index: index, Alg: crypto.SHA384, Digest: digest}
}

func TestReplayAndMatch(t *testing.T) {
	tests := []struct {
		name     string
		log      Log
		expected []ReferenceMeasurement
		wantErr  error
	}{
		{
			name: "Empty Log Zero Register",
			log:  Log{},
			expected: []ReferenceMeasurement{
				{Index: 4, Alg: crypto.SHA384, Reference: make([]byte, 48)},
			},
		},
		{
			name: "Empty Log Non-Zero Register",
			log:  nil,
			expected: []ReferenceMeasurement{
				{Index: 4, Alg: crypto.SHA384, Reference: entryA},
			},
			wantErr: ErrRegisterMismatch,
		},
		{
			name: "Two Entries",
			log:  Log{sha384Entry(4, entryA), sha384Entry(4, entryB)},
			expected: []ReferenceMeasurement{
				{Index: 4, Alg: crypto.SHA384, Reference: chain(entryA, entryB)},
			},
		},
		{
			name: "Swapped Entries",
			log:  Log{sha384Entry(4, entryB), sha384Entry(4, entryA)},
			expected: []ReferenceMeasurement{
				{Index: 4, Alg: crypto.SHA384, Reference: chain(entryA, entryB)},
			},
			wantErr: ErrRegisterMismatch,
		},
		{
			name: "Interleaved Registers",
			log: Log{
				sha384Entry(1, entryA),
				sha384Entry(2, entryB),
				sha384Entry(1, entryB),
				sha384Entry(2, entryA),
			},
			expected: []ReferenceMeasurement{
				{Index: 1, Alg: crypto.SHA384, Reference: chain(entryA, entryB)},
				{Index: 2, Alg: crypto.SHA384, Reference: chain(entryB, entryA)},
				{Index: 3, Alg: crypto.SHA384, Reference: make([]byte, 48)},
			},
		},
		{
			name: "Register Not Expected Is Ignored",
			log:  Log{sha384Entry(1, entryA), sha384Entry(4, entryB)},
			expected: []ReferenceMeasurement{
				{Index: 4, Alg: crypto.SHA384, Reference: chain(entryB)},
			},
		},
		{
			name: "Algorithm Mismatch",
			log:  Log{{Index: 4, Alg: crypto.SHA256, Digest: make([]byte, 32)}},
			expected: []ReferenceMeasurement{
				{Index: 4, Alg: crypto.SHA384, Reference: make([]byte, 48)},
			},
			wantErr: ErrAlgorithmMismatch,
		},
		{
			name: "Digest Length Mismatch",
			log:  Log{{Index: 4, Alg: crypto.SHA384, Digest: make([]byte, 32)}},
			expected: []ReferenceMeasurement{
				{Index: 4, Alg: crypto.SHA384, Reference: make([]byte, 48)},
			},
			wantErr: ErrAlgorithmMismatch,
		},
		{
			name: "Second Register Fails",
			log:  Log{sha384Entry(1, entryA), sha384Entry(2, entryA)},
			expected: []ReferenceMeasurement{
				{Index: 1, Alg: crypto.SHA384, Reference: chain(entryA)},
				{Index: 2, Alg: crypto.SHA384, Reference: chain(entryB)},
			},
			wantErr: ErrRegisterMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ReplayAndMatch(tt.log, tt.expected)
			if tt.wantErr == nil && err != nil {
				t.Errorf("ReplayAndMatch() unexpected error = %v", err)
				return
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ReplayAndMatch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReplayAndMatchIndex(t *testing.T) {
	err := ReplayAndMatch(Log{sha384Entry(3, entryA)}, []ReferenceMeasurement{
		{Index: 3, Alg: crypto.SHA384, Reference: chain(entryB)},
	})

	var replayErr *ReplayError
	if !errors.As(err, &replayErr) {
		t.Fatalf("ReplayAndMatch() error = %v, want *ReplayError", err)
	}
	if replayErr.Index != 3 {
		t.Errorf("ReplayError.Index = %v, want 3", replayErr.Index)
	}
	if !bytes.Equal(replayErr.Replayed, chain(entryA)) {
		t.Errorf("ReplayError.Replayed = %x, want %x", replayErr.Replayed, chain(entryA))
	}
}

func TestReplayDeterminism(t *testing.T) {
	l := Log{sha384Entry(4, entryA), sha384Entry(4, entryB)}
	expected := []ReferenceMeasurement{{Index: 4, Alg: crypto.SHA384, Reference: chain(entryA, entryB)}}
	wrong := []ReferenceMeasurement{{Index: 4, Alg: crypto.SHA384, Reference: chain(entryB, entryA)}}

	for i := 0; i < 3; i++ {
		if err := ReplayAndMatch(l, expected); err != nil {
			t.Fatalf("run %v: ReplayAndMatch() error = %v", i, err)
		}
		if err := ReplayAndMatch(l, wrong); !errors.Is(err, ErrRegisterMismatch) {
			t.Fatalf("run %v: ReplayAndMatch() error = %v, want register mismatch", i, err)
		}
	}
}

func TestReplayOrderSensitivity(t *testing.T) {
	ab, err := Replay(Log{sha384Entry(4, entryA), sha384Entry(4, entryB)}, 4, crypto.SHA384)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := Replay(Log{sha384Entry(4, entryB), sha384Entry(4, entryA)}, 4, crypto.SHA384)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(ab, ba) {
		t.Errorf("swapping two entries must change the replayed register")
	}
}
