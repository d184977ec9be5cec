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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/urfave/cli/v3"

	"github.com/Fraunhofer-AISEC/attestation-service/api"
	"github.com/Fraunhofer-AISEC/attestation-service/rvps"
	"github.com/Fraunhofer-AISEC/attestation-service/verifier"
)

var schemaObjects = []any{
	api.AttestationRequest{},
	api.AttestationResponse{},
	api.RegisterRequest{},
	api.DigestsResponse{},
	api.VersionResponse{},
	api.ErrorResponse{},
	verifier.TdxEvidence{},
	verifier.SampleEvidence{},
	rvps.Message{},
	rvps.Provenance{},
	rvps.ReferenceValue{},
}

var schemaCommand = &cli.Command{
	Name:  "schema",
	Usage: "Generates JSON schema definitions of the API and evidence formats",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: outFlag, Usage: "output directory", Value: "schema"},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		return writeSchemas(cmd.String(outFlag))
	},
}

func writeSchemas(dir string) error {
	err := os.MkdirAll(dir, os.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	r := &jsonschema.Reflector{
		ExpandedStruct:            false,
		Anonymous:                 true,
		DoNotReference:            false,
		AllowAdditionalProperties: true,
	}

	for _, o := range schemaObjects {
		schema := r.Reflect(o)
		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}

		f := filepath.Join(dir, fmt.Sprintf("%v.json", getName(o)))
		err = os.WriteFile(f, data, 0644)
		if err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		log.Debugf("Wrote %v", f)
	}

	return nil
}

func getName(v any) string {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
