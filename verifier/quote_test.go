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
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

type quoteParams struct {
	reportData [64]byte
	mrConfigId [48]byte
	rtmrs      [4][48]byte
	certChain  []byte
}

// buildQuote creates a structurally valid TDX quote v4 with dummy signature
// material
func buildQuote(t testing.TB, p quoteParams) []byte {
	t.Helper()

	w := func(buf *bytes.Buffer, v any) {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("failed to write quote: %v", err)
		}
	}

	chain := p.certChain
	if chain == nil {
		chain = []byte("dummy PCK certificate chain")
	}

	cert := new(bytes.Buffer)
	w(cert, EnclaveReportBody{ISVSVN: 7})
	w(cert, [64]byte{0x51})
	w(cert, uint16(32))
	w(cert, bytes.Repeat([]byte{0xa5}, 32))
	w(cert, uint16(PCK_CERT_CHAIN_DATA_TYPE))
	w(cert, uint32(len(chain)))
	w(cert, chain)

	sig := new(bytes.Buffer)
	w(sig, [64]byte{0x01})
	w(sig, [64]byte{0x02})
	w(sig, uint16(QE_REPORT_CERT_DATA_TYPE))
	w(sig, uint32(cert.Len()))
	w(sig, cert.Bytes())

	quote := new(bytes.Buffer)
	w(quote, QuoteHeader{
		Version:            TDX_QUOTE_VERSION,
		AttestationKeyType: 2,
		TeeType:            TDX_TEE_TYPE,
		QEVendorID:         [16]byte{0x93, 0x9a, 0x72, 0x33},
	})
	w(quote, TdxReportBody{
		MrConfigId: p.mrConfigId,
		RtMr0:      p.rtmrs[0],
		RtMr1:      p.rtmrs[1],
		RtMr2:      p.rtmrs[2],
		RtMr3:      p.rtmrs[3],
		ReportData: p.reportData,
	})
	w(quote, uint32(sig.Len()))
	w(quote, sig.Bytes())

	return quote.Bytes()
}

func TestDecodeTdxQuoteByteOrder(t *testing.T) {
	raw := buildQuote(t, quoteParams{})

	// Literal little-endian fixtures at fixed offsets
	copy(raw[8:10], []byte{0x34, 0x12})  // QESVN
	copy(raw[10:12], []byte{0x78, 0x56}) // PCESVN
	raw[232] = 0xcc                      // MRCONFIGID[0]
	raw[376] = 0x10                      // RTMR0[0]
	raw[567] = 0xbb                      // RTMR3[47]
	raw[568] = 0xaa                      // REPORTDATA[0]
	raw[631] = 0xdd                      // REPORTDATA[63]

	q, err := DecodeTdxQuote(raw)
	if err != nil {
		t.Fatalf("DecodeTdxQuote() error = %v", err)
	}

	if q.Header.Version != 4 || q.Header.AttestationKeyType != 2 || q.Header.TeeType != 0x81 {
		t.Errorf("header = %+v", q.Header)
	}
	if q.Header.QESVN != 0x1234 || q.Header.PCESVN != 0x5678 {
		t.Errorf("QESVN = %#x, PCESVN = %#x, want 0x1234, 0x5678", q.Header.QESVN, q.Header.PCESVN)
	}
	if q.MrConfigId()[0] != 0xcc {
		t.Errorf("MRCONFIGID[0] = %#x, want 0xcc", q.MrConfigId()[0])
	}
	if q.Rtmrs()[0][0] != 0x10 || q.Rtmrs()[3][47] != 0xbb {
		t.Errorf("RTMR0[0] = %#x, RTMR3[47] = %#x", q.Rtmrs()[0][0], q.Rtmrs()[3][47])
	}
	if q.ReportData()[0] != 0xaa || q.ReportData()[63] != 0xdd {
		t.Errorf("REPORTDATA[0] = %#x, REPORTDATA[63] = %#x", q.ReportData()[0], q.ReportData()[63])
	}
	if got := binary.LittleEndian.Uint32(raw[632:636]); q.SignatureDataLen != got || int(got) != len(raw)-636 {
		t.Errorf("SignatureDataLen = %v, want %v", q.SignatureDataLen, len(raw)-636)
	}
	if q.SignatureData.QEReport.ISVSVN != 7 || len(q.SignatureData.QEAuthData) != 32 {
		t.Errorf("QE report certification data not decoded: %+v", q.SignatureData.QEReport)
	}
	if string(q.SignatureData.PckCertChain) != "dummy PCK certificate chain" {
		t.Errorf("PckCertChain = %q", q.SignatureData.PckCertChain)
	}
}

func TestDecodeTdxQuoteTruncated(t *testing.T) {
	raw := buildQuote(t, quoteParams{})

	for n := 0; n < len(raw); n++ {
		_, err := DecodeTdxQuote(raw[:n])
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("DecodeTdxQuote(raw[:%v]) error = %v, want truncation error", n, err)
		}
	}
}

func TestDecodeTdxQuoteMalformed(t *testing.T) {
	tests := []struct {
		name   string
		modify func(raw []byte) []byte
	}{
		{
			name: "Big Endian Version",
			modify: func(raw []byte) []byte {
				copy(raw[0:2], []byte{0x00, 0x04})
				return raw
			},
		},
		{
			name: "Version 5",
			modify: func(raw []byte) []byte {
				raw[0] = 5
				return raw
			},
		},
		{
			name: "SGX TEE Type",
			modify: func(raw []byte) []byte {
				raw[4] = 0
				return raw
			},
		},
		{
			name: "Trailing Bytes",
			modify: func(raw []byte) []byte {
				return append(raw, 0x00)
			},
		},
		{
			name: "Signature Data Length Too Small",
			modify: func(raw []byte) []byte {
				binary.LittleEndian.PutUint32(raw[632:636], 100)
				return raw[:636+100]
			},
		},
		{
			name: "Certification Data Type",
			modify: func(raw []byte) []byte {
				binary.LittleEndian.PutUint16(raw[636+128:], 5)
				return raw
			},
		},
		{
			name: "Certification Data Size Too Large",
			modify: func(raw []byte) []byte {
				s := binary.LittleEndian.Uint32(raw[636+130:])
				binary.LittleEndian.PutUint32(raw[636+130:], s+1)
				return raw
			},
		},
		{
			name: "Certification Data Size Too Small",
			modify: func(raw []byte) []byte {
				s := binary.LittleEndian.Uint32(raw[636+130:])
				binary.LittleEndian.PutUint32(raw[636+130:], s-1)
				return raw
			},
		},
		{
			name: "QE Authentication Data Size",
			modify: func(raw []byte) []byte {
				binary.LittleEndian.PutUint16(raw[636+134+384+64:], 0xffff)
				return raw
			},
		},
		{
			name: "PCK Certification Data Type",
			modify: func(raw []byte) []byte {
				binary.LittleEndian.PutUint16(raw[636+134+384+64+2+32:], 4)
				return raw
			},
		},
		{
			name: "PCK Certification Data Size",
			modify: func(raw []byte) []byte {
				off := 636 + 134 + 384 + 64 + 2 + 32 + 2
				s := binary.LittleEndian.Uint32(raw[off:])
				binary.LittleEndian.PutUint32(raw[off:], s+10)
				return raw
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.modify(buildQuote(t, quoteParams{}))
			_, err := DecodeTdxQuote(raw)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("DecodeTdxQuote() error = %v, want malformed error", err)
			}
		})
	}
}

func FuzzDecodeTdxQuote(f *testing.F) {
	f.Add(buildQuote(f, quoteParams{}))
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, data []byte) {
		q, err := DecodeTdxQuote(data)
		if err == nil && q == nil {
			t.Errorf("DecodeTdxQuote() returned neither quote nor error")
		}
		if err != nil && !errors.Is(err, ErrTruncated) && !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeTdxQuote() returned untyped error %v", err)
		}
	})
}
