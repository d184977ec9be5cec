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

package api

import (
	"encoding/json"
	"fmt"
	"mime"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

const (
	MimeJson = "application/json"
	MimeCbor = "application/cbor"
)

// Serializer encodes and decodes API messages in one wire format
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	ContentType() string
}

type JsonSerializer struct{}

func (s JsonSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (s JsonSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (s JsonSerializer) ContentType() string {
	return MimeJson
}

// Nested claim maps decode to map[string]any, as they do for JSON
var cborDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("invalid cbor decoding options: %v", err))
	}
	return dm
}()

var cborEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("invalid cbor encoding options: %v", err))
	}
	return em
}()

type CborSerializer struct{}

func (s CborSerializer) Marshal(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

func (s CborSerializer) Unmarshal(data []byte, v any) error {
	return cborDecMode.Unmarshal(data, v)
}

func (s CborSerializer) ContentType() string {
	return MimeCbor
}

// SerializerForAccept selects the response serializer from an Accept header.
// JSON is the default.
func SerializerForAccept(accept string) Serializer {
	for _, part := range strings.Split(accept, ",") {
		if mediaType(part) == MimeCbor {
			return CborSerializer{}
		}
	}
	return JsonSerializer{}
}

// SerializerForContentType selects the request serializer from a
// Content-Type header. An empty header means JSON.
func SerializerForContentType(contentType string) (Serializer, error) {
	switch mt := mediaType(contentType); mt {
	case "", MimeJson:
		return JsonSerializer{}, nil
	case MimeCbor:
		return CborSerializer{}, nil
	default:
		return nil, fmt.Errorf("unsupported content type %q", mt)
	}
}

func mediaType(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		return strings.ToLower(s)
	}
	return mt
}
