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

package verifier

import (
	"encoding/binary"
	"encoding/hex"
	"errors"

	"github.com/Fraunhofer-AISEC/attestation-service/eventlog"
)

// BuildTdxClaims merges the decoded quote, the eventlog derived fields and the
// custom claims of the quote verifier into one claim document. Custom claims
// come from the authenticated certificate chain and overwrite other keys.
func BuildTdxClaims(q *TdxQuote, ccel eventlog.Log, aael *eventlog.Aael, custom Claims) (Claims, error) {
	if q == nil {
		return nil, errors.New("cannot build claims without a quote")
	}

	h := &q.Header
	b := &q.Body

	claims := Claims{
		"quote": map[string]any{
			"header": map[string]any{
				"version":      le16(h.Version),
				"att_key_type": le16(h.AttestationKeyType),
				"tee_type":     le32(h.TeeType),
				"reserved":     le16(h.QESVN) + le16(h.PCESVN),
				"vendor_id":    hex.EncodeToString(h.QEVendorID[:]),
				"user_data":    hex.EncodeToString(h.UserData[:]),
			},
			"body": map[string]any{
				"tcb_svn":         hex.EncodeToString(b.TeeTcbSvn[:]),
				"mr_seam":         hex.EncodeToString(b.MrSeam[:]),
				"mrsigner_seam":   hex.EncodeToString(b.MrSignerSeam[:]),
				"seam_attributes": hex.EncodeToString(b.SeamAttributes[:]),
				"td_attributes":   hex.EncodeToString(b.TdAttributes[:]),
				"xfam":            hex.EncodeToString(b.XFAM[:]),
				"mr_td":           hex.EncodeToString(b.MrTd[:]),
				"mr_config_id":    hex.EncodeToString(b.MrConfigId[:]),
				"mr_owner":        hex.EncodeToString(b.MrOwner[:]),
				"mr_owner_config": hex.EncodeToString(b.MrOwnerConfig[:]),
				"rtmr_0":          hex.EncodeToString(b.RtMr0[:]),
				"rtmr_1":          hex.EncodeToString(b.RtMr1[:]),
				"rtmr_2":          hex.EncodeToString(b.RtMr2[:]),
				"rtmr_3":          hex.EncodeToString(b.RtMr3[:]),
				"report_data":     hex.EncodeToString(b.ReportData[:]),
			},
		},
		"report_data": hex.EncodeToString(b.ReportData[:]),
		"init_data":   hex.EncodeToString(b.MrConfigId[:]),
	}

	if ccel != nil {
		claims["ccel"] = ccel.Claims()
	}
	if aael != nil {
		claims["aael"] = aael.Claims()
	}

	for k, v := range custom {
		if _, ok := claims[k]; ok {
			log.Debugf("Custom claim %v overwrites evidence claim", k)
		}
		claims[k] = v
	}

	return claims, nil
}

// le16 and le32 render integers as hex of their little-endian quote bytes
func le16(v uint16) string {
	return hex.EncodeToString(binary.LittleEndian.AppendUint16(nil, v))
}

func le32(v uint32) string {
	return hex.EncodeToString(binary.LittleEndian.AppendUint32(nil, v))
}
