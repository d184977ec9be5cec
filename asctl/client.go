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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/Fraunhofer-AISEC/attestation-service/api"
	"github.com/Fraunhofer-AISEC/attestation-service/rvps"
	"github.com/Fraunhofer-AISEC/attestation-service/verifier"
)

const (
	teeFlag         = "tee"
	evidenceFlag    = "evidence"
	runtimeDataFlag = "runtime-data"
	initDataFlag    = "init-data"
	typeFlag        = "type"
	provenanceFlag  = "provenance"
	authTokenFlag   = "auth-token"
)

var evaluateCommand = &cli.Command{
	Name:  "evaluate",
	Usage: "Sends evidence to the attestation service and prints the verified claims",
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: teeFlag, Usage: "TEE type", Value: string(verifier.TeeTdx)},
		&cli.StringFlag{Name: evidenceFlag, Usage: "evidence file", Required: true},
		&cli.StringFlag{Name: runtimeDataFlag, Usage: "hex encoded expected report data (default: any)"},
		&cli.StringFlag{Name: initDataFlag, Usage: "hex encoded expected init data hash (default: any)"},
	}, serviceFlags...),
	Action: func(ctx context.Context, cmd *cli.Command) error {
		evidence, err := os.ReadFile(cmd.String(evidenceFlag))
		if err != nil {
			return fmt.Errorf("failed to read evidence: %w", err)
		}
		req := &api.AttestationRequest{
			Tee:         verifier.Tee(cmd.String(teeFlag)),
			Evidence:    evidence,
			RuntimeData: cmd.String(runtimeDataFlag),
			InitData:    cmd.String(initDataFlag),
		}
		resp, err := newClient(cmd).evaluate(ctx, req)
		if err != nil {
			return err
		}
		return printJson(resp)
	},
}

var registerCommand = &cli.Command{
	Name:  "register",
	Usage: "Registers provenance with the reference value provider",
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: typeFlag, Usage: "provenance type (in-toto, sample)", Value: rvps.TypeSample},
		&cli.StringFlag{Name: provenanceFlag, Usage: "provenance file", Required: true},
		&cli.StringFlag{Name: authTokenFlag, Usage: "file containing the bearer token"},
	}, serviceFlags...),
	Action: func(ctx context.Context, cmd *cli.Command) error {
		provenance, err := os.ReadFile(cmd.String(provenanceFlag))
		if err != nil {
			return fmt.Errorf("failed to read provenance: %w", err)
		}
		message, err := json.Marshal(&rvps.Message{
			Version: rvps.MessageVersion,
			Type:    cmd.String(typeFlag),
			Payload: string(provenance),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		c := newClient(cmd)
		if path := cmd.String(authTokenFlag); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read authorization token: %w", err)
			}
			c.authToken = strings.TrimSpace(string(data))
		}

		if err := c.register(ctx, &api.RegisterRequest{Message: string(message)}); err != nil {
			return err
		}
		log.Infof("Registered %v provenance", cmd.String(typeFlag))
		return nil
	},
}

var digestsCommand = &cli.Command{
	Name:  "digests",
	Usage: "Prints the currently valid reference digests",
	Flags: serviceFlags,
	Action: func(ctx context.Context, cmd *cli.Command) error {
		resp, err := newClient(cmd).digests(ctx)
		if err != nil {
			return err
		}
		return printJson(resp)
	},
}

type client struct {
	addr       string
	serializer api.Serializer
	authToken  string
	http       *http.Client
}

func newClient(cmd *cli.Command) *client {
	var s api.Serializer = api.JsonSerializer{}
	if cmd.Bool(cborFlag) {
		s = api.CborSerializer{}
	}
	return &client{
		addr:       strings.TrimSuffix(cmd.String(addrFlag), "/"),
		serializer: s,
		http:       &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *client) evaluate(ctx context.Context, req *api.AttestationRequest) (*api.AttestationResponse, error) {
	resp := new(api.AttestationResponse)
	if err := c.do(ctx, http.MethodPost, api.EndpointAttestation, req, resp); err != nil {
		return nil, fmt.Errorf("failed to evaluate evidence: %w", err)
	}
	return resp, nil
}

func (c *client) register(ctx context.Context, req *api.RegisterRequest) error {
	if err := c.do(ctx, http.MethodPost, api.EndpointRegister, req, nil); err != nil {
		return fmt.Errorf("failed to register provenance: %w", err)
	}
	return nil
}

func (c *client) digests(ctx context.Context) (*api.DigestsResponse, error) {
	resp := new(api.DigestsResponse)
	if err := c.do(ctx, http.MethodGet, api.EndpointDigests, nil, resp); err != nil {
		return nil, fmt.Errorf("failed to get digests: %w", err)
	}
	return resp, nil
}

func (c *client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := c.serializer.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.addr+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", c.serializer.ContentType())
	if in != nil {
		req.Header.Set("Content-Type", c.serializer.ContentType())
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	log.Debugf("Sending %v %v", method, req.URL)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, api.MaxMsgLen))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		e := new(api.ErrorResponse)
		if err := api.SerializerForAccept(resp.Header.Get("Content-Type")).Unmarshal(data, e); err == nil && e.Message != "" {
			return fmt.Errorf("server responded %v: %v", resp.StatusCode, e.Message)
		}
		return fmt.Errorf("server responded %v", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := api.SerializerForAccept(resp.Header.Get("Content-Type")).Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func printJson(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	return output("", data)
}
