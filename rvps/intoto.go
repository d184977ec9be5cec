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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	intoto "github.com/in-toto/in-toto-golang/in_toto"
	"golang.org/x/exp/maps"

	"github.com/Fraunhofer-AISEC/attestation-service/internal"
)

const (
	// InTotoVersion is the supported version of in-toto provenance
	InTotoVersion = "0.9"

	inTotoPayloadType = "application/vnd.in-toto+json"
	layoutSuffix      = ".layout"
	pubKeySuffix      = ".pub"
)

// Link verification resolves links relative to the working directory, which
// is process-wide. Only one verification may run at a time.
var workDirMu sync.Mutex

// Provenance is an in-toto supply chain bundle. Files maps relative paths to
// the base64 encoded file contents (layout, public keys and links).
type Provenance struct {
	Version           string            `json:"version"`
	LineNormalization bool              `json:"line_normalization"`
	Files             map[string]string `json:"files"`
}

// Products maps the artifact paths of a verified supply chain to their
// digests, keyed by hash algorithm
type Products map[string]map[string]string

// LinkVerifier verifies the signed layout at layoutPath with the given
// public keys against the links in the current working directory
type LinkVerifier interface {
	Verify(layoutPath string, keyPaths []string, lineNormalization bool) (Products, error)
}

// InTotoExtractor verifies in-toto provenance and extracts one reference
// value per product of the verified supply chain
type InTotoExtractor struct {
	verifier LinkVerifier
}

// NewInTotoExtractor creates an in-toto extractor. If lv is nil, links are
// verified with in-toto-golang.
func NewInTotoExtractor(lv LinkVerifier) *InTotoExtractor {
	if lv == nil {
		lv = inTotoVerifier{}
	}
	return &InTotoExtractor{verifier: lv}
}

func (e *InTotoExtractor) VerifyAndExtract(provenance string) ([]ReferenceValue, error) {
	p := Provenance{Version: InTotoVersion}
	if err := json.Unmarshal([]byte(provenance), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal in-toto provenance: %w", err)
	}
	if p.Version != InTotoVersion {
		return nil, fmt.Errorf("%w: got %q, need %q", ErrVersionMismatch, p.Version, InTotoVersion)
	}

	dir, err := os.MkdirTemp("", "rvps-intoto-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warnf("Failed to remove %v: %v", dir, err)
		}
	}()
	log.Debugf("Using %v to store in-toto metadata", dir)

	layoutPath, keyPaths, err := writeProvenanceFiles(dir, p.Files)
	if err != nil {
		return nil, err
	}
	if layoutPath == "" {
		return nil, ErrMissingLayout
	}

	expires, err := readLayoutExpiry(layoutPath)
	if err != nil {
		return nil, err
	}

	products, err := e.verifyInDir(dir, layoutPath, keyPaths, p.LineNormalization)
	if err != nil {
		return nil, err
	}

	names := maps.Keys(products)
	slices.Sort(names)

	rvs := make([]ReferenceValue, 0, len(names))
	for _, name := range names {
		algs := maps.Keys(products[name])
		slices.Sort(algs)
		rv := ReferenceValue{
			Version:    p.Version,
			Name:       name,
			Expiration: expires,
		}
		for _, alg := range algs {
			rv.Value = append(rv.Value, products[name][alg])
		}
		if err := rv.validate(); err != nil {
			return nil, err
		}
		rvs = append(rvs, rv)
	}

	log.Debugf("Extracted %v in-toto reference values", len(rvs))

	return rvs, nil
}

// verifyInDir runs the link verifier with dir as working directory. The
// working directory is process global, so calls are serialized and the lock
// is released even if the verifier panics.
func (e *InTotoExtractor) verifyInDir(dir, layoutPath string, keyPaths []string, lineNorm bool) (Products, error) {
	workDirMu.Lock()
	defer workDirMu.Unlock()

	var products Products
	err := internal.WithWorkDir(dir, func() error {
		var err error
		products, err = e.verifier.Verify(layoutPath, keyPaths, lineNorm)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// writeProvenanceFiles stores the files below dir and returns the path of the
// layout and the public keys. Paths cannot escape dir.
func writeProvenanceFiles(dir string, files map[string]string) (string, []string, error) {
	rels := maps.Keys(files)
	slices.Sort(rels)

	var layoutPath string
	var keyPaths []string
	for _, rel := range rels {
		path, err := securejoin.SecureJoin(dir, rel)
		if err != nil {
			return "", nil, fmt.Errorf("invalid file path %v: %w", rel, err)
		}
		if path == dir {
			return "", nil, fmt.Errorf("invalid file path %q", rel)
		}
		data, err := base64.StdEncoding.DecodeString(files[rel])
		if err != nil {
			return "", nil, fmt.Errorf("failed to decode %v: %w", rel, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", nil, fmt.Errorf("failed to create directory for %v: %w", rel, err)
		}
		if err := os.WriteFile(path, data, 0600); err != nil {
			return "", nil, fmt.Errorf("failed to write %v: %w", rel, err)
		}
		log.Tracef("Wrote %v (%v bytes)", path, len(data))

		switch {
		case strings.HasSuffix(path, layoutSuffix) && layoutPath == "":
			layoutPath = path
		case strings.HasSuffix(path, pubKeySuffix):
			keyPaths = append(keyPaths, path)
		}
	}

	return layoutPath, keyPaths, nil
}

// readLayoutExpiry returns the expiry of the layout wrapped in the DSSE
// envelope at path
func readLayoutExpiry(path string) (time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read layout: %w", err)
	}

	var envelope struct {
		PayloadType string `json:"payloadType"`
		Payload     string `json:"payload"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal layout envelope: %w", err)
	}
	if envelope.PayloadType != inTotoPayloadType {
		return time.Time{}, fmt.Errorf("unsupported layout payload type %q, only %q is supported",
			envelope.PayloadType, inTotoPayloadType)
	}

	payload, err := base64.StdEncoding.DecodeString(envelope.Payload)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to decode layout payload: %w", err)
	}

	var layout struct {
		Expires string `json:"expires"`
	}
	if err := json.Unmarshal(payload, &layout); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal layout: %w", err)
	}
	if layout.Expires == "" {
		return time.Time{}, fmt.Errorf("layout does not specify an expiry")
	}

	expires, err := time.Parse(time.RFC3339, layout.Expires)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse layout expiry: %w", err)
	}

	return expires.UTC(), nil
}

// inTotoVerifier runs the in-toto-golang final product verification
type inTotoVerifier struct{}

func (inTotoVerifier) Verify(layoutPath string, keyPaths []string, lineNormalization bool) (Products, error) {
	layout, err := intoto.LoadMetadata(layoutPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load layout: %w", err)
	}

	keys := make(map[string]intoto.Key, len(keyPaths))
	for _, p := range keyPaths {
		var k intoto.Key
		if err := k.LoadKeyDefaults(p); err != nil {
			return nil, fmt.Errorf("failed to load key %v: %w", p, err)
		}
		keys[k.KeyID] = k
	}

	summary, err := intoto.InTotoVerify(layout, keys, ".", "", nil, nil, lineNormalization)
	if err != nil {
		return nil, err
	}

	// The summary link payload is decoded through its JSON form, which is
	// stable across in-toto-golang versions
	data, err := json.Marshal(summary.GetPayload())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary link: %w", err)
	}
	var link struct {
		Products Products `json:"products"`
	}
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary link: %w", err)
	}

	return link.Products, nil
}
