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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLinkVerifier struct {
	products Products
	err      error

	// recorded on the call
	cwd        string
	layoutPath string
	keyPaths   []string
	lineNorm   bool
}

func (s *stubLinkVerifier) Verify(layoutPath string, keyPaths []string, lineNormalization bool) (Products, error) {
	s.cwd, _ = os.Getwd()
	s.layoutPath = layoutPath
	s.keyPaths = keyPaths
	s.lineNorm = lineNormalization
	return s.products, s.err
}

func layoutEnvelope(t *testing.T, payloadType, expires string) string {
	t.Helper()
	layout, err := json.Marshal(map[string]any{
		"_type":   "layout",
		"expires": expires,
		"steps":   []any{},
	})
	require.NoError(t, err)
	envelope, err := json.Marshal(map[string]any{
		"payloadType": payloadType,
		"payload":     base64.StdEncoding.EncodeToString(layout),
		"signatures":  []any{},
	})
	require.NoError(t, err)
	return string(envelope)
}

func provenance(t *testing.T, version string, files map[string]string) string {
	t.Helper()
	p := map[string]any{
		"line_normalization": true,
	}
	if version != "" {
		p["version"] = version
	}
	encoded := make(map[string]string, len(files))
	for k, v := range files {
		encoded[k] = base64.StdEncoding.EncodeToString([]byte(v))
	}
	p["files"] = encoded
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return string(data)
}

func TestInTotoExtractor(t *testing.T) {
	validLayout := layoutEnvelope(t, inTotoPayloadType, "2030-11-18T16:06:36Z")
	validFiles := map[string]string{
		"root.layout":             validLayout,
		"alice.pub":               "alice",
		"keys/bob.pub":            "bob",
		"build.776a00e2.link":     "{}",
		"nested/dir/package.link": "{}",
	}
	products := Products{
		"foo.tar.gz": {"sha256": "52947cb78b91ad01fe81cd6aef42d1f6817e92b9e6936c1e5aabb7c98514f355"},
		"bar":        {"sha512": "cc", "sha256": "bb"},
	}
	expires := time.Date(2030, 11, 18, 16, 6, 36, 0, time.UTC)

	tests := []struct {
		name       string
		provenance string
		verifier   *stubLinkVerifier
		want       []ReferenceValue
		wantErr    error
		wantCalled bool
	}{
		{
			name:       "Success",
			provenance: provenance(t, "0.9", validFiles),
			verifier:   &stubLinkVerifier{products: products},
			want: []ReferenceValue{
				{Version: "0.9", Name: "bar", Expiration: expires, Value: []string{"bb", "cc"}},
				{
					Version:    "0.9",
					Name:       "foo.tar.gz",
					Expiration: expires,
					Value:      []string{"52947cb78b91ad01fe81cd6aef42d1f6817e92b9e6936c1e5aabb7c98514f355"},
				},
			},
			wantCalled: true,
		},
		{
			name:       "Default version",
			provenance: provenance(t, "", validFiles),
			verifier:   &stubLinkVerifier{},
			want:       []ReferenceValue{},
			wantCalled: true,
		},
		{
			name:       "Version mismatch",
			provenance: provenance(t, "1.0", validFiles),
			verifier:   &stubLinkVerifier{},
			wantErr:    ErrVersionMismatch,
		},
		{
			name:       "Missing layout",
			provenance: provenance(t, "0.9", map[string]string{"alice.pub": "alice"}),
			verifier:   &stubLinkVerifier{},
			wantErr:    ErrMissingLayout,
		},
		{
			name:       "Verification failed",
			provenance: provenance(t, "0.9", validFiles),
			verifier:   &stubLinkVerifier{err: errors.New("signature invalid")},
			wantErr:    ErrVerificationFailed,
			wantCalled: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cwd, err := os.Getwd()
			require.NoError(t, err)

			e := NewInTotoExtractor(tt.verifier)
			got, err := e.VerifyAndExtract(tt.provenance)

			after, gerr := os.Getwd()
			require.NoError(t, gerr)
			assert.Equal(t, cwd, after, "working directory not restored")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			if !tt.wantCalled {
				assert.Empty(t, tt.verifier.cwd, "link verifier must not run")
				return
			}

			// The verifier ran inside the temporary directory, which is gone
			dir := filepath.Dir(tt.verifier.layoutPath)
			assert.NotEqual(t, cwd, tt.verifier.cwd)
			assert.Equal(t, "root.layout", filepath.Base(tt.verifier.layoutPath))
			assert.Len(t, tt.verifier.keyPaths, 2)
			assert.True(t, tt.verifier.lineNorm)
			_, err = os.Stat(dir)
			assert.True(t, os.IsNotExist(err), "temporary directory %v not removed", dir)
		})
	}
}

type panickingLinkVerifier struct{}

func (panickingLinkVerifier) Verify(string, []string, bool) (Products, error) {
	panic("link verifier failure")
}

func TestInTotoExtractorRecoversAfterPanic(t *testing.T) {
	files := map[string]string{
		"root.layout": layoutEnvelope(t, inTotoPayloadType, "2030-01-01T00:00:00Z"),
		"alice.pub":   "alice",
	}
	prov := provenance(t, "0.9", files)

	cwd, err := os.Getwd()
	require.NoError(t, err)

	func() {
		defer func() {
			assert.NotNil(t, recover())
		}()
		NewInTotoExtractor(panickingLinkVerifier{}).VerifyAndExtract(prov)
	}()

	after, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, cwd, after)

	done := make(chan error, 1)
	go func() {
		_, err := NewInTotoExtractor(&stubLinkVerifier{}).VerifyAndExtract(prov)
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("in-toto verification still serialized behind a panicked call")
	}
}

func TestInTotoExtractorConfinesPaths(t *testing.T) {
	v := &stubLinkVerifier{}
	files := map[string]string{
		"root.layout":       layoutEnvelope(t, inTotoPayloadType, "2030-01-01T00:00:00Z"),
		"../../../evil.pub": "evil",
	}

	_, err := NewInTotoExtractor(v).VerifyAndExtract(provenance(t, "0.9", files))
	require.NoError(t, err)

	root := filepath.Dir(v.layoutPath)
	require.Len(t, v.keyPaths, 1)
	assert.True(t, strings.HasPrefix(v.keyPaths[0], root+string(filepath.Separator)),
		"key %v escaped %v", v.keyPaths[0], root)
}

func TestInTotoExtractorLayout(t *testing.T) {
	tests := []struct {
		name   string
		layout string
	}{
		{"Wrong payload type", layoutEnvelope(t, "application/json", "2030-01-01T00:00:00Z")},
		{"Missing expiry", layoutEnvelope(t, inTotoPayloadType, "")},
		{"Invalid expiry", layoutEnvelope(t, inTotoPayloadType, "tomorrow")},
		{"Not an envelope", "layout"},
		{"Payload not base64", `{"payloadType": "application/vnd.in-toto+json", "payload": "%%%"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &stubLinkVerifier{}
			files := map[string]string{"root.layout": tt.layout}
			_, err := NewInTotoExtractor(v).VerifyAndExtract(provenance(t, "0.9", files))
			assert.Error(t, err)
			assert.Empty(t, v.cwd, "link verifier must not run")
		})
	}
}

func TestInTotoExtractorMalformedProvenance(t *testing.T) {
	tests := []struct {
		name       string
		provenance string
	}{
		{"Not JSON", "provenance"},
		{"File not base64", `{"version": "0.9", "line_normalization": false, "files": {"root.layout": "%%%"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInTotoExtractor(&stubLinkVerifier{}).VerifyAndExtract(tt.provenance)
			assert.Error(t, err)
		})
	}
}
