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
	"bytes"
	"encoding/hex"
	"fmt"
)

type expectedKind int

const (
	expectedUnset expectedKind = iota
	expectedAny
	expectedValue
)

// ExpectedValue is the caller's policy for one bound field: either skip the
// check (Any) or require an exact match (Value). The zero value is neither
// and is rejected, so a missing policy never turns into Any.
type ExpectedValue struct {
	kind  expectedKind
	value []byte
}

func Any() ExpectedValue {
	return ExpectedValue{kind: expectedAny}
}

func Value(b []byte) ExpectedValue {
	return ExpectedValue{kind: expectedValue, value: bytes.Clone(b)}
}

func (e ExpectedValue) IsAny() bool {
	return e.kind == expectedAny
}

// Bytes returns the expected bytes and whether the value variant is set
func (e ExpectedValue) Bytes() ([]byte, bool) {
	return e.value, e.kind == expectedValue
}

func (e ExpectedValue) String() string {
	switch e.kind {
	case expectedAny:
		return "Any"
	case expectedValue:
		return fmt.Sprintf("Value(%v)", hex.EncodeToString(e.value))
	default:
		return "Unset"
	}
}

// Regularize right-pads expected with zero bytes to the field width. Values
// longer than the field are rejected.
func Regularize(expected []byte, width int, field, tee string) ([]byte, error) {
	if len(expected) > width {
		return nil, &BindingError{
			Field:  field,
			Tee:    tee,
			Reason: TooLong,
			Msg:    fmt.Sprintf("%v bytes, field has %v bytes", len(expected), width),
		}
	}
	if len(expected) < width {
		log.Debugf("Padding expected %v of %v from %v to %v bytes", field, tee, len(expected), width)
	}
	ret := make([]byte, width)
	copy(ret, expected)
	return ret, nil
}

// CheckBinding compares the expected value against the actual field of the
// evidence. The expected value is regularized to the length of actual.
func CheckBinding(expected ExpectedValue, actual []byte, field, tee string) error {
	switch expected.kind {
	case expectedAny:
		log.Debugf("Skipping %v binding check of %v", field, tee)
		return nil
	case expectedValue:
	default:
		return &BindingError{Field: field, Tee: tee, Reason: Unspecified}
	}

	log.Debugf("Check the binding of %v", field)

	want, err := Regularize(expected.value, len(actual), field, tee)
	if err != nil {
		return err
	}
	if !bytes.Equal(want, actual) {
		log.Tracef("Expected %v: %v, got %v", field, hex.EncodeToString(want), hex.EncodeToString(actual))
		return &BindingError{Field: field, Tee: tee, Reason: Mismatch}
	}
	log.Debugf("%v binding check succeeded", field)

	return nil
}
