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
	"crypto"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/google/go-eventlog/register"
	"github.com/google/go-eventlog/tcg"
)

// TCG PC Client event types used for claims extraction
const (
	evIpl                        = 0x0000000D
	evEventTag                   = 0x00000006
	evEfiBootServicesApplication = 0x80000003
)

// CC MR indices as defined in UEFI Spec 2.10 Section 38.4.1:
// CC MR Index | TDX register
// 0           | MRTD
// 1           | RTMR0
// 2           | RTMR1
// 3           | RTMR2
// 4           | RTMR3
const (
	CcMrRtmr0 = 1
	CcMrRtmr1 = 2
	CcMrRtmr2 = 3
	CcMrRtmr3 = 4
)

// Kernel command lines are measured with one of these prefixes by grub
// and the TD shim
var cmdlinePrefixes = []string{
	"grub_cmd: linux ",
	"grub_cmd linux ",
	"kernel_cmdline: ",
}

// ParseCcel parses a binary CC eventlog (ACPI CCEL table data, TCG crypto
// agile format) and returns its SHA-384 events in log order. EV_NO_ACTION
// events are informational and never extended, so they are not returned.
func ParseCcel(data []byte) (Log, error) {
	el, err := tcg.ParseEventLog(data, tcg.ParseOpts{AllowPadding: true})
	if err != nil {
		return nil, fmt.Errorf("failed to parse CC eventlog: %w", err)
	}

	events := el.Events(register.HashSHA384)
	l := make(Log, 0, len(events))
	for _, ev := range events {
		if ev.Type == tcg.NoAction {
			log.Tracef("Skipping EV_NO_ACTION event on CC MR %v", ev.MRIndex())
			continue
		}
		l = append(l, Entry{
			Index:     ev.MRIndex(),
			Alg:       crypto.SHA384,
			Digest:    ev.Digest,
			EventType: uint32(ev.Type),
			Data:      ev.Data,
		})
	}
	log.Debugf("Parsed CC eventlog with %v SHA-384 events", len(l))

	return l, nil
}

// TdxReferenceMeasurements returns the reference measurements mapping CC MR
// indices 1..4 to the four RTMRs
func TdxReferenceMeasurements(rtmrs [4][]byte) []ReferenceMeasurement {
	refs := make([]ReferenceMeasurement, 0, len(rtmrs))
	for i, rtmr := range rtmrs {
		refs = append(refs, ReferenceMeasurement{
			Index:     uint32(i + CcMrRtmr0),
			Alg:       crypto.SHA384,
			Reference: rtmr,
		})
	}
	return refs
}

// Claims returns the structured fields derived from a firmware log: the
// digest of the last boot services application measured into RTMR1 (the
// kernel), the parsed kernel command line and the number of events
func (l Log) Claims() map[string]any {
	claims := map[string]any{
		"events": len(l),
	}

	params := map[string]any{}
	for _, e := range l {
		switch {
		case e.Index == CcMrRtmr1 && e.EventType == evEfiBootServicesApplication:
			claims["kernel"] = hex.EncodeToString(e.Digest)
		case e.Index == CcMrRtmr2 && (e.EventType == evIpl || e.EventType == evEventTag):
			if cmdline, ok := parseCmdline(e.Data); ok {
				for k, v := range parseKernelParameters(cmdline) {
					params[k] = v
				}
			}
		}
	}
	claims["kernel_parameters"] = params

	return claims
}

func parseCmdline(data []byte) (string, bool) {
	s := decodeEventString(data)
	for _, p := range cmdlinePrefixes {
		if strings.HasPrefix(s, p) {
			return strings.TrimPrefix(s, p), true
		}
	}
	return "", false
}

// decodeEventString decodes event data which is either ASCII or UTF-16LE
// (as measured by the EFI stub) and strips trailing NUL characters
func decodeEventString(data []byte) string {
	if len(data) >= 2 && len(data)%2 == 0 && data[1] == 0 {
		u := make([]uint16, 0, len(data)/2)
		for i := 0; i+1 < len(data); i += 2 {
			u = append(u, binary.LittleEndian.Uint16(data[i:]))
		}
		return strings.TrimRight(string(utf16.Decode(u)), "\x00")
	}
	return strings.TrimRight(string(data), "\x00")
}

// parseKernelParameters splits a kernel command line into key/value pairs.
// The first token is the kernel image path, flags without a value are set
// to true.
func parseKernelParameters(cmdline string) map[string]any {
	params := map[string]any{}
	for i, tok := range strings.Fields(cmdline) {
		if i == 0 && strings.HasPrefix(tok, "/") {
			continue
		}
		k, v, found := strings.Cut(tok, "=")
		if found {
			params[k] = v
		} else {
			params[k] = true
		}
	}
	return params
}
