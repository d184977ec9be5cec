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

package eventlog

import (
	"bufio"
	"bytes"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/Fraunhofer-AISEC/attestation-service/internal"
)

const aaelInitKeyword = "INIT"

// AaelEvent is one line of the attestation-agent eventlog
type AaelEvent struct {
	Domain    string
	Operation string
	Content   string
	Digest    []byte
}

// Aael is the parsed attestation-agent eventlog. The text format is
//
//	INIT sha384/<hex encoded initial register value>
//	<domain> <operation> <content>
//	...
//
// Every event line is hashed as a whole with the INIT algorithm and the
// digest is extended into the application register.
type Aael struct {
	Alg    crypto.Hash
	Init   []byte
	Events []AaelEvent
}

// ParseAael parses the textual attestation-agent eventlog
func ParseAael(text string) (*Aael, error) {
	var aael *Aael

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if aael == nil {
			init, err := parseAaelInit(line)
			if err != nil {
				return nil, fmt.Errorf("line %v: %w", lineNum, err)
			}
			aael = init
			continue
		}

		fields := strings.SplitN(line, " ", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %v: malformed event %q: expected <domain> <operation> <content>",
				lineNum, line)
		}
		digest, err := internal.Hash(aael.Alg, []byte(line))
		if err != nil {
			return nil, fmt.Errorf("line %v: %w", lineNum, err)
		}
		aael.Events = append(aael.Events, AaelEvent{
			Domain:    fields[0],
			Operation: fields[1],
			Content:   fields[2],
			Digest:    digest,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read AA eventlog: %w", err)
	}
	if aael == nil {
		return nil, errors.New("AA eventlog does not contain an INIT line")
	}

	log.Debugf("Parsed AA eventlog with %v events (%v)", len(aael.Events), internal.HashName(aael.Alg))

	return aael, nil
}

func parseAaelInit(line string) (*Aael, error) {
	keyword, value, ok := strings.Cut(line, " ")
	if !ok || keyword != aaelInitKeyword {
		return nil, fmt.Errorf("expected %v line, got %q", aaelInitKeyword, line)
	}
	algName, initHex, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok {
		return nil, fmt.Errorf("malformed %v value %q: expected <alg>/<hex>", aaelInitKeyword, value)
	}
	alg, err := internal.HashFromString(algName)
	if err != nil {
		return nil, fmt.Errorf("unsupported %v algorithm: %w", aaelInitKeyword, err)
	}
	init, err := hex.DecodeString(initHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %v value: %w", aaelInitKeyword, err)
	}
	if !bytes.Equal(init, internal.ZeroDigest(alg)) {
		return nil, fmt.Errorf("unsupported %v value %v: must be the all-zero %v digest",
			aaelInitKeyword, initHex, internal.HashName(alg))
	}

	return &Aael{Alg: alg, Init: init}, nil
}

// Log renders the events as entries targeting the register with the given
// CC MR index. The result is a log of its own and must be replayed
// separately from the firmware log.
func (a *Aael) Log(index uint32) Log {
	l := make(Log, 0, len(a.Events))
	for _, ev := range a.Events {
		l = append(l, Entry{
			Index:  index,
			Alg:    a.Alg,
			Digest: ev.Digest,
			Data:   []byte(ev.Domain + " " + ev.Operation + " " + ev.Content),
		})
	}
	return l
}

// IntegrityCheck replays the events against the application register value.
// The application log always targets RTMR3.
func (a *Aael) IntegrityCheck(rtmr3 []byte) error {
	return ReplayAndMatch(a.Log(CcMrRtmr3), []ReferenceMeasurement{
		{Index: CcMrRtmr3, Alg: crypto.SHA384, Reference: rtmr3},
	})
}

// Claims groups event contents by "<domain>/<operation>" in log order
func (a *Aael) Claims() map[string]any {
	grouped := map[string][]string{}
	for _, ev := range a.Events {
		key := ev.Domain + "/" + ev.Operation
		grouped[key] = append(grouped[key], ev.Content)
	}

	claims := make(map[string]any, len(grouped))
	for k, v := range grouped {
		claims[k] = v
	}
	return claims
}
