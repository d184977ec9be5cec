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

// Package token issues signed attestation tokens: JSON Web Signatures over
// the claims of a successful verification.
package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

var log = logrus.WithField("service", "token")

const (
	Issuer = "attestation-service"

	// DefaultValidity is the lifetime of issued tokens
	DefaultValidity = 5 * time.Minute
)

var supportedAlgs = []jose.SignatureAlgorithm{
	jose.ES256, jose.ES384, jose.ES512, jose.RS256, jose.RS512,
}

// Payload is the body of an attestation token
type Payload struct {
	Issuer        string         `json:"iss"`
	IssuedAt      int64          `json:"iat"`
	Expiry        int64          `json:"exp"`
	Tee           string         `json:"tee"`
	EvidenceClass string         `json:"evidence_class"`
	Claims        map[string]any `json:"claims"`
}

// Signer signs attestation tokens. The public key is embedded as JWK into the
// protected header of every token.
type Signer struct {
	priv     crypto.Signer
	signer   jose.Signer
	validity time.Duration
	clock    clock.PassiveClock
}

// NewSigner creates a signer for the PEM encoded private key at keyFile. If
// keyFile is empty, an ephemeral P-256 key is generated.
func NewSigner(keyFile string, clk clock.PassiveClock) (*Signer, error) {
	var priv crypto.Signer
	if keyFile == "" {
		log.Debug("No token key configured, generating ephemeral P-256 key")
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate token key: %w", err)
		}
		priv = key
	} else {
		data, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read token key: %w", err)
		}
		priv, err = ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse token key %v: %w", keyFile, err)
		}
	}
	return NewSignerFromKey(priv, clk)
}

func NewSignerFromKey(priv crypto.Signer, clk clock.PassiveClock) (*Signer, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}

	alg, err := algFromKeyType(priv.Public())
	if err != nil {
		return nil, err
	}

	var opt jose.SignerOptions
	opt.EmbedJWK = true
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: priv}, opt.WithType("JWT"))
	if err != nil {
		return nil, fmt.Errorf("failed to create token signer: %w", err)
	}

	return &Signer{
		priv:     priv,
		signer:   signer,
		validity: DefaultValidity,
		clock:    clk,
	}, nil
}

func (s *Signer) Public() crypto.PublicKey {
	return s.priv.Public()
}

// Sign issues a token over the claims of a verified evidence
func (s *Signer) Sign(tee, class string, claims map[string]any) (string, error) {
	now := s.clock.Now()
	payload := Payload{
		Issuer:        Issuer,
		IssuedAt:      now.Unix(),
		Expiry:        now.Add(s.validity).Unix(),
		Tee:           tee,
		EvidenceClass: class,
		Claims:        claims,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token payload: %w", err)
	}

	log.Trace("Signing attestation token")

	obj, err := s.signer.Sign(data)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	token, err := obj.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize token: %w", err)
	}

	return token, nil
}

// Verify verifies a token with the given public key and returns its payload.
// Expired tokens are rejected.
func Verify(token string, pub crypto.PublicKey, clk clock.PassiveClock) (*Payload, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}

	jws, err := jose.ParseSigned(token, supportedAlgs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	data, err := jws.Verify(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to verify token signature: %w", err)
	}

	payload := new(Payload)
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token payload: %w", err)
	}

	if clk.Now().Unix() > payload.Expiry {
		return nil, fmt.Errorf("token expired at %v", time.Unix(payload.Expiry, 0).UTC())
	}

	return payload, nil
}

// ParsePrivateKey parses a PEM encoded EC, PKCS#1 or PKCS#8 private key
func ParsePrivateKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", key)
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// algFromKeyType deduces the signature algorithm from the key type
func algFromKeyType(pub crypto.PublicKey) (jose.SignatureAlgorithm, error) {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		switch key.Size() {
		case 256:
			return jose.RS256, nil
		case 512:
			return jose.RS512, nil
		default:
			return "", fmt.Errorf("unsupported RSA key size %v", key.Size())
		}
	case *ecdsa.PublicKey:
		switch key.Curve {
		case elliptic.P256():
			return jose.ES256, nil
		case elliptic.P384():
			return jose.ES384, nil
		case elliptic.P521():
			return jose.ES512, nil
		default:
			return "", errors.New("unsupported elliptic curve")
		}
	default:
		return "", fmt.Errorf("unsupported key type %T", pub)
	}
}
