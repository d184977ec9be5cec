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
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Fraunhofer-AISEC/attestation-service/api"
	"github.com/Fraunhofer-AISEC/attestation-service/internal"
	"github.com/Fraunhofer-AISEC/attestation-service/rvps"
	"github.com/Fraunhofer-AISEC/attestation-service/token"
	"github.com/Fraunhofer-AISEC/attestation-service/verifier"
)

type server struct {
	addr      string
	debug     bool
	verifiers map[verifier.Tee]verifier.Verifier
	rvps      *rvps.Rvps
	signer    *token.Signer
	authToken []byte
}

func newServer(c *config) (*server, error) {

	verifiers := make(map[verifier.Tee]verifier.Verifier)
	for _, tee := range verifier.Tees() {
		v, err := verifier.New(tee, c.verifierConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create %v verifier: %w", tee, err)
		}
		verifiers[tee] = v
	}

	var store rvps.Store
	switch c.Rvps.Store {
	case storeSqlite:
		s, err := rvps.NewSqliteStore(c.Rvps.SqlitePath, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		store = s
	default:
		store = rvps.NewMemoryStore(nil)
	}

	signer, err := token.NewSigner(c.TokenKey, nil)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create token signer: %w", err)
	}

	var authToken []byte
	if c.AuthToken != "" {
		authToken, err = os.ReadFile(c.AuthToken)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to read token file: %w", err)
		}
		authToken = []byte(strings.TrimSpace(string(authToken)))
	}

	return &server{
		addr:      c.Addr,
		debug:     c.Debug,
		verifiers: verifiers,
		rvps:      rvps.New(rvps.DefaultExtractors(nil), store),
		signer:    signer,
		authToken: authToken,
	}, nil
}

func (s *server) close() {
	if err := s.rvps.Close(); err != nil {
		log.Warnf("Failed to close reference value store: %v", err)
	}
}

func (s *server) router() *gin.Engine {
	if !s.debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if s.debug {
		router.Use(gin.Logger())
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
	}))

	router.POST(api.EndpointAttestation, s.handleAttestation)
	router.POST(api.EndpointRegister, s.handleRegister)
	router.GET(api.EndpointDigests, s.handleGetDigests)
	router.GET(api.EndpointVersion, s.handleGetVersion)

	return router
}

// serve runs the HTTP server until ctx is cancelled
func (s *server) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("Serving attestation service on %v", s.addr)
		errc <- srv.ListenAndServe()
	}()

	if err := notifySystemd(); err != nil {
		log.Warnf("Failed to notify systemd: %v", err)
	}

	select {
	case err := <-errc:
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down attestation service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}

	return nil
}

// handleAttestation verifies evidence and responds with the parsed claims
func (s *server) handleAttestation(c *gin.Context) {

	log.Trace("in POST /attestation")

	req := new(api.AttestationRequest)
	if err := readRequest(c, req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Sprintf("Failed to read request: %v", err))
		return
	}

	v, ok := s.verifiers[req.Tee]
	if !ok {
		fail(c, http.StatusBadRequest, fmt.Sprintf("Unsupported TEE %q (supported: %v)", req.Tee, verifier.Tees()))
		return
	}

	reportData, initData, err := req.Expected()
	if err != nil {
		fail(c, http.StatusBadRequest, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	claims, class, err := v.Evaluate(req.Evidence, reportData, initData)
	if err != nil {
		status := http.StatusForbidden
		if errors.Is(err, verifier.ErrTruncated) || errors.Is(err, verifier.ErrMalformed) {
			status = http.StatusBadRequest
		}
		fail(c, status, fmt.Sprintf("Failed to verify %v evidence: %v", req.Tee, err))
		return
	}

	jwt, err := s.signer.Sign(string(req.Tee), class, claims)
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Sprintf("Failed to issue token: %v", err))
		return
	}

	respond(c, http.StatusOK, &api.AttestationResponse{
		Claims: claims,
		Class:  class,
		Token:  jwt,
	})

	log.Debugf("Verified %v evidence", req.Tee)
}

// handleRegister registers reference values from provenance
func (s *server) handleRegister(c *gin.Context) {

	log.Trace("in POST /rvps/register")

	if err := authorize(c.Request, s.authToken); err != nil {
		fail(c, http.StatusUnauthorized, fmt.Sprintf("Unauthorized request: %v", err))
		return
	}

	req := new(api.RegisterRequest)
	if err := readRequest(c, req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Sprintf("Failed to read request: %v", err))
		return
	}

	if err := s.rvps.VerifyAndExtract(req.Message); err != nil {
		status := http.StatusBadRequest
		var storeErr *rvps.StoreError
		if errors.As(err, &storeErr) {
			status = http.StatusInternalServerError
		}
		fail(c, status, fmt.Sprintf("Failed to register reference values: %v", err))
		return
	}

	c.Status(http.StatusOK)
}

// handleGetDigests responds with all currently valid reference digests
func (s *server) handleGetDigests(c *gin.Context) {

	log.Trace("in GET /rvps/digests")

	digests, err := s.rvps.GetDigests()
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve digests: %v", err))
		return
	}

	respond(c, http.StatusOK, &api.DigestsResponse{Digests: digests})

	log.Tracef("Finished returning digests for %v artifacts", len(digests))
}

func (s *server) handleGetVersion(c *gin.Context) {
	respond(c, http.StatusOK, &api.VersionResponse{Version: internal.GetVersion()})
}

func readRequest(c *gin.Context, v any) error {
	serializer, err := api.SerializerForContentType(c.ContentType())
	if err != nil {
		return err
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, api.MaxMsgLen+1))
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) > api.MaxMsgLen {
		return fmt.Errorf("body exceeds maximum size %v", api.MaxMsgLen)
	}
	if err := serializer.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to unmarshal body: %w", err)
	}
	return nil
}

func respond(c *gin.Context, status int, v any) {
	serializer := api.SerializerForAccept(c.GetHeader("Accept"))
	data, err := serializer.Marshal(v)
	if err != nil {
		msg := fmt.Sprintf("Failed to marshal response: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"message": msg})
		log.Warn(msg)
		return
	}
	c.Data(status, serializer.ContentType(), data)
}

func fail(c *gin.Context, status int, msg string) {
	if status >= http.StatusInternalServerError {
		log.Error(msg)
	} else {
		log.Warn(msg)
	}
	if _, ok := api.SerializerForAccept(c.GetHeader("Accept")).(api.CborSerializer); ok {
		respond(c, status, &api.ErrorResponse{Message: msg})
		return
	}
	c.IndentedJSON(status, gin.H{"message": msg})
}

func authorize(req *http.Request, refToken []byte) error {

	// Authorization is optional and must be configured
	if refToken == nil {
		return nil
	}

	authHeader := req.Header.Get("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return fmt.Errorf("missing or invalid authorization header")
	}

	presentedToken := strings.TrimPrefix(authHeader, "Bearer ")
	presentedToken = strings.TrimSpace(presentedToken)

	if subtle.ConstantTimeCompare(refToken, []byte(presentedToken)) != 1 {
		return fmt.Errorf("failed to verify authorization token")
	}

	return nil
}
