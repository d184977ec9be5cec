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

import "fmt"

type DecodeErrorKind int

const (
	Truncated DecodeErrorKind = iota + 1
	Malformed
)

func (k DecodeErrorKind) String() string {
	switch k {
	case Truncated:
		return "truncated"
	case Malformed:
		return "malformed"
	default:
		return "invalid"
	}
}

// DecodeError is returned if a binary quote cannot be decoded. Use
// errors.Is with ErrTruncated or ErrMalformed to check the kind.
type DecodeError struct {
	Kind DecodeErrorKind
	Msg  string
}

var (
	ErrTruncated = &DecodeError{Kind: Truncated}
	ErrMalformed = &DecodeError{Kind: Malformed}
)

func (e *DecodeError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%v quote", e.Kind)
	}
	return fmt.Sprintf("%v quote: %v", e.Kind, e.Msg)
}

func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Kind == e.Kind
}

func truncated(format string, args ...any) error {
	return &DecodeError{Kind: Truncated, Msg: fmt.Sprintf(format, args...)}
}

func malformed(format string, args ...any) error {
	return &DecodeError{Kind: Malformed, Msg: fmt.Sprintf(format, args...)}
}

type BindingReason int

const (
	Mismatch BindingReason = iota + 1
	TooLong
	Unspecified
)

// BindingError is returned if caller supplied data is not bound to the
// evidence. It always names the field and the TEE.
type BindingError struct {
	Field  string
	Tee    string
	Reason BindingReason
	Msg    string
}

var (
	ErrBindingMismatch = &BindingError{Reason: Mismatch}
	ErrBindingTooLong  = &BindingError{Reason: TooLong}
)

func (e *BindingError) Error() string {
	switch e.Reason {
	case Mismatch:
		return fmt.Sprintf("%v binding failed: %v does not match the %v evidence", e.Tee, e.Field, e.Tee)
	case TooLong:
		return fmt.Sprintf("%v binding failed: expected %v is too long: %v", e.Tee, e.Field, e.Msg)
	default:
		return fmt.Sprintf("%v binding failed: no expected value policy for %v", e.Tee, e.Field)
	}
}

func (e *BindingError) Is(target error) bool {
	t, ok := target.(*BindingError)
	return ok && t.Reason == e.Reason
}
