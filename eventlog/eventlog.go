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

// Package eventlog implements measurement-log replay for TEE measurement
// registers. Logs are parsed from their source formats (binary CC eventlog,
// attestation-agent text log) into a common ordered list of entries which is
// replayed per register and compared against the register values of a quote.
package eventlog

import (
	"bytes"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Fraunhofer-AISEC/attestation-service/internal"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "eventlog")

var (
	ErrRegisterMismatch  = errors.New("register mismatch")
	ErrAlgorithmMismatch = errors.New("hash algorithm mismatch")
)

// Entry is a single measurement extended into the register with the given
// CC MR index. EventType and Data are descriptive only and never replayed.
type Entry struct {
	Index     uint32
	Alg       crypto.Hash
	Digest    []byte
	EventType uint32
	Data      []byte
}

// Log is an ordered measurement log. Order is significant: each register is
// a hash chain over its entries in log order.
type Log []Entry

// ReferenceMeasurement is the expected terminal value of one register
type ReferenceMeasurement struct {
	Index     uint32
	Alg       crypto.Hash
	Reference []byte
}

// ReplayError is returned if a replayed register does not match its
// reference. It wraps ErrRegisterMismatch or ErrAlgorithmMismatch.
type ReplayError struct {
	Err      error
	Index    uint32
	Replayed []byte
	Expected []byte
	Detail   string
}

func (e *ReplayError) Error() string {
	if errors.Is(e.Err, ErrRegisterMismatch) {
		return fmt.Sprintf("%v: CC MR index %v replayed %v, reference %v",
			e.Err, e.Index, hex.EncodeToString(e.Replayed), hex.EncodeToString(e.Expected))
	}
	if e.Detail != "" {
		return fmt.Sprintf("%v: CC MR index %v: %v", e.Err, e.Index, e.Detail)
	}
	return fmt.Sprintf("%v: CC MR index %v", e.Err, e.Index)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}

// Replay computes the value of the register with the given index by extending
// the all-zero digest of alg with the digest of every matching entry in log
// order
func Replay(l Log, index uint32, alg crypto.Hash) ([]byte, error) {
	if !alg.Available() {
		return nil, &ReplayError{Err: ErrAlgorithmMismatch, Index: index,
			Detail: fmt.Sprintf("register algorithm %v not available", alg)}
	}

	acc := internal.ZeroDigest(alg)
	for i, e := range l {
		if e.Index != index {
			continue
		}
		if e.Alg != alg || len(e.Digest) != alg.Size() {
			return nil, &ReplayError{Err: ErrAlgorithmMismatch, Index: index,
				Detail: fmt.Sprintf("entry %v uses %v (%v bytes), register uses %v",
					i, e.Alg, len(e.Digest), alg)}
		}
		var err error
		acc, err = internal.Extend(alg, acc, e.Digest)
		if err != nil {
			return nil, fmt.Errorf("failed to extend CC MR index %v: %w", index, err)
		}
	}

	return acc, nil
}

// ReplayAndMatch replays the log for every register in expected and compares
// the result to the reference. A register without entries must equal the
// all-zero digest.
func ReplayAndMatch(l Log, expected []ReferenceMeasurement) error {
	for _, ref := range expected {
		replayed, err := Replay(l, ref.Index, ref.Alg)
		if err != nil {
			return err
		}

		if !bytes.Equal(replayed, ref.Reference) {
			return &ReplayError{
				Err:      ErrRegisterMismatch,
				Index:    ref.Index,
				Replayed: replayed,
				Expected: ref.Reference,
			}
		}
		log.Tracef("CC MR index %v matches: %v", ref.Index, hex.EncodeToString(replayed))
	}

	return nil
}
