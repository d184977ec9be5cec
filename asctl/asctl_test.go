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

package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fraunhofer-AISEC/attestation-service/api"
	"github.com/Fraunhofer-AISEC/attestation-service/verifier"
)

func TestBuildEvidence(t *testing.T) {
	dir := t.TempDir()
	ccelPath := filepath.Join(dir, "CCEL")
	aaelPath := filepath.Join(dir, "aael")
	require.NoError(t, os.WriteFile(ccelPath, []byte{1, 2, 3}, 0644))
	require.NoError(t, os.WriteFile(aaelPath, []byte("INIT sha384/00\n"), 0644))

	tests := []struct {
		name     string
		ccel     string
		aael     string
		wantCcel bool
		wantAael bool
		wantErr  bool
	}{
		{"Quote only", "", "", false, false, false},
		{"All", ccelPath, aaelPath, true, true, false},
		{"Missing CCEL", filepath.Join(dir, "missing"), "", false, false, true},
		{"Missing AAEL", "", filepath.Join(dir, "missing"), false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := buildEvidence([]byte{0xde, 0xad}, tt.ccel, tt.aael)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0xde, 0xad}), e.Quote)
			assert.Equal(t, tt.wantCcel, e.CcEventlog != nil)
			assert.Equal(t, tt.wantAael, e.AaEventlog != nil)
			if tt.wantCcel {
				assert.Equal(t, "AQID", *e.CcEventlog)
			}
			if tt.wantAael {
				assert.Equal(t, "INIT sha384/00\n", *e.AaEventlog)
			}
		})
	}
}

func TestClient(t *testing.T) {
	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		s := api.SerializerForAccept(r.Header.Get("Accept"))

		var resp any
		status := http.StatusOK
		switch r.URL.Path {
		case api.EndpointAttestation:
			body, _ := io.ReadAll(r.Body)
			req := new(api.AttestationRequest)
			if err := s.Unmarshal(body, req); err != nil || req.Tee != verifier.TeeSample {
				status = http.StatusForbidden
				resp = api.ErrorResponse{Message: "verification failed"}
				break
			}
			resp = api.AttestationResponse{Claims: verifier.Claims{"svn": "1"}, Class: verifier.ClassCpu}
		case api.EndpointRegister:
		case api.EndpointDigests:
			resp = api.DigestsResponse{Digests: map[string][]string{"kernel": {"aa"}}}
		default:
			status = http.StatusNotFound
		}

		w.Header().Set("Content-Type", s.ContentType())
		w.WriteHeader(status)
		if resp != nil {
			data, _ := s.Marshal(resp)
			w.Write(data)
		}
	}))
	defer srv.Close()

	for _, s := range []api.Serializer{api.JsonSerializer{}, api.CborSerializer{}} {
		t.Run(s.ContentType(), func(t *testing.T) {
			c := &client{addr: srv.URL, serializer: s, http: srv.Client(), authToken: "secret"}
			ctx := context.Background()

			resp, err := c.evaluate(ctx, &api.AttestationRequest{
				Tee:      verifier.TeeSample,
				Evidence: json.RawMessage(`{}`),
			})
			require.NoError(t, err)
			assert.Equal(t, "1", resp.Claims["svn"])
			assert.Equal(t, s.ContentType(), gotContentType)

			_, err = c.evaluate(ctx, &api.AttestationRequest{Tee: verifier.TeeTdx})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "verification failed")

			require.NoError(t, c.register(ctx, &api.RegisterRequest{Message: "{}"}))
			assert.Equal(t, "Bearer secret", gotAuth)

			digests, err := c.digests(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[string][]string{"kernel": {"aa"}}, digests.Digests)
		})
	}
}

func TestWriteSchemas(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "schema")
	require.NoError(t, writeSchemas(dir))

	for _, o := range schemaObjects {
		data, err := os.ReadFile(filepath.Join(dir, getName(o)+".json"))
		require.NoError(t, err)
		assert.True(t, json.Valid(data), "%v schema is not valid JSON", getName(o))
	}
}

func TestQuoteProtoJsonInvalid(t *testing.T) {
	_, err := quoteProtoJson([]byte{4, 0, 2, 0})
	assert.Error(t, err)
}
