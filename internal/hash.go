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

package internal

import (
	"crypto"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"strings"
)

// HashFromString retrieves the hash algorithm from names as they appear in
// eventlogs and reference values, e.g. "sha384" or "SHA-384"
func HashFromString(s string) (crypto.Hash, error) {
	switch strings.ToUpper(s) {
	case "SHA1", "SHA-1":
		return crypto.SHA1, nil
	case "SHA256", "SHA-256":
		return crypto.SHA256, nil
	case "SHA384", "SHA-384":
		return crypto.SHA384, nil
	case "SHA512", "SHA-512":
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("unsupported hash %q", s)
	}
}

// HashName returns the lower-case short name of the algorithm ("sha384")
func HashName(alg crypto.Hash) string {
	switch alg {
	case crypto.SHA1:
		return "sha1"
	case crypto.SHA256:
		return "sha256"
	case crypto.SHA384:
		return "sha384"
	case crypto.SHA512:
		return "sha512"
	default:
		return strings.ToLower(alg.String())
	}
}

// Extend performs the extend operation Digest = HASH(Digest | Data) using the
// specified hash algorithm
func Extend(alg crypto.Hash, digest, data []byte) ([]byte, error) {
	if !alg.Available() {
		return nil, fmt.Errorf("hash algorithm not available: %v", alg)
	}

	h := alg.New()
	h.Write(digest)
	h.Write(data)
	return h.Sum(nil), nil
}

// Hash performs the hash operation using the specified hash algorithm
func Hash(alg crypto.Hash, data []byte) ([]byte, error) {
	if !alg.Available() {
		return nil, fmt.Errorf("hash algorithm not available: %v", alg)
	}

	h := alg.New()
	h.Write(data)
	return h.Sum(nil), nil
}

// ZeroDigest returns the all-zero initial register value for alg
func ZeroDigest(alg crypto.Hash) []byte {
	return make([]byte, alg.Size())
}
