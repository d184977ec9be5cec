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
	"fmt"
	"io"
)

// All multi-byte integers of the quote are little-endian
const (
	QUOTE_HEADER_SIZE          = 48
	TDX_QUOTE_BODY_SIZE        = 584
	TDX_QUOTE_SIGNATURE_OFFSET = 636
	ENCLAVE_REPORT_BODY_SIZE   = 384

	TDX_QUOTE_VERSION = 4
	TDX_TEE_TYPE      = 0x81

	QE_REPORT_CERT_DATA_TYPE = 6
	PCK_CERT_CHAIN_DATA_TYPE = 5

	REPORT_DATA_SIZE = 64
	MR_SIZE          = 48
)

// 48 bytes
type QuoteHeader struct {
	Version            uint16
	AttestationKeyType uint16 // 2: ECDSA-256-with-P-256 curve
	TeeType            uint32 // 0x00000081: TDX
	QESVN              uint16 // TDX: RESERVED
	PCESVN             uint16 // TDX: RESERVED
	QEVendorID         [16]byte
	UserData           [20]byte
}

// TDX quote V4: Intel TDX DCAP: Quote Generation Library and Quote Verification Library Rev 0.9
// A.3.2. TD Quote Body (584 Bytes)
type TdxReportBody struct {
	TeeTcbSvn      [16]byte
	MrSeam         [48]byte
	MrSignerSeam   [48]byte
	SeamAttributes [8]byte
	TdAttributes   [8]byte
	XFAM           [8]byte
	MrTd           [48]byte
	MrConfigId     [48]byte
	MrOwner        [48]byte
	MrOwnerConfig  [48]byte
	RtMr0          [48]byte
	RtMr1          [48]byte
	RtMr2          [48]byte
	RtMr3          [48]byte
	ReportData     [64]byte
}

// 384 bytes
type EnclaveReportBody struct {
	CPUSVN     [16]byte
	MISCSELECT uint32
	Reserved1  [28]byte
	Attributes [16]byte
	MRENCLAVE  [32]byte
	Reserved2  [32]byte
	MRSIGNER   [32]byte
	Reserved3  [96]byte
	ISVProdID  uint16
	ISVSVN     uint16
	Reserved4  [60]byte
	ReportData [64]byte
}

// A.3.8. ECDSA 256-bit Quote Signature Data Structure - Version 4, with the
// nested QE Report Certification Data (type 6) flattened
type QuoteSignatureData struct {
	QuoteSignature        [64]byte
	ECDSAAttestationKey   [64]byte
	CertificationDataType uint16
	CertificationDataSize uint32
	QEReport              EnclaveReportBody
	QEReportSignature     [64]byte
	QEAuthData            []byte
	PckCertDataType       uint16
	PckCertChain          []byte // PCK Leaf Cert || Intermediate CA Cert || Root CA Cert (PEM)
}

// TdxQuote is a read-only view of a decoded TDX quote v4
type TdxQuote struct {
	Header           QuoteHeader
	Body             TdxReportBody
	SignatureDataLen uint32
	SignatureData    QuoteSignatureData
}

func (q *TdxQuote) ReportData() []byte {
	return q.Body.ReportData[:]
}

func (q *TdxQuote) MrConfigId() []byte {
	return q.Body.MrConfigId[:]
}

// Rtmrs returns RTMR0..RTMR3
func (q *TdxQuote) Rtmrs() [4][]byte {
	return [4][]byte{q.Body.RtMr0[:], q.Body.RtMr1[:], q.Body.RtMr2[:], q.Body.RtMr3[:]}
}

// PckCertChain parses the PCK certificate chain embedded in the quote
func (q *TdxQuote) PckCertChain() (SgxCertificates, error) {
	return ParseCertificates(q.SignatureData.PckCertChain)
}

// DecodeTdxQuote decodes a TDX quote v4. It fails with a truncation error if
// the buffer is shorter than the fixed layout or the declared signature data,
// and with a malformed error if fields or inner length fields are invalid.
func DecodeTdxQuote(b []byte) (*TdxQuote, error) {
	if len(b) < TDX_QUOTE_SIGNATURE_OFFSET {
		return nil, truncated("got %v bytes, fixed layout requires %v", len(b), TDX_QUOTE_SIGNATURE_OFFSET)
	}

	var q TdxQuote
	r := bytes.NewReader(b)

	if err := binary.Read(r, binary.LittleEndian, &q.Header); err != nil {
		return nil, truncated("failed to decode header: %v", err)
	}
	if q.Header.Version != TDX_QUOTE_VERSION {
		return nil, malformed("unsupported quote version %v, only v%v is supported",
			q.Header.Version, TDX_QUOTE_VERSION)
	}
	if q.Header.TeeType != TDX_TEE_TYPE {
		return nil, malformed("unsupported TEE type %#x, expected %#x", q.Header.TeeType, TDX_TEE_TYPE)
	}
	log.Tracef("Decoding TDX quote version %v", q.Header.Version)

	if err := binary.Read(r, binary.LittleEndian, &q.Body); err != nil {
		return nil, truncated("failed to decode body: %v", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &q.SignatureDataLen); err != nil {
		return nil, truncated("failed to decode signature data length: %v", err)
	}

	sigData := b[TDX_QUOTE_SIGNATURE_OFFSET:]
	if uint64(len(sigData)) < uint64(q.SignatureDataLen) {
		return nil, truncated("signature data has %v bytes, length field declares %v",
			len(sigData), q.SignatureDataLen)
	}
	if uint64(len(sigData)) > uint64(q.SignatureDataLen) {
		return nil, malformed("%v trailing bytes after signature data",
			uint64(len(sigData))-uint64(q.SignatureDataLen))
	}

	if err := decodeSignatureData(sigData, &q.SignatureData); err != nil {
		return nil, err
	}

	return &q, nil
}

// decodeSignatureData decodes the signature data block. Its total length is
// already known, so every read beyond it is an inconsistent inner length.
func decodeSignatureData(data []byte, sig *QuoteSignatureData) error {
	r := bytes.NewReader(data)

	for _, f := range []struct {
		name string
		v    any
	}{
		{"quote signature", &sig.QuoteSignature},
		{"ECDSA attestation key", &sig.ECDSAAttestationKey},
		{"certification data type", &sig.CertificationDataType},
		{"certification data size", &sig.CertificationDataSize},
	} {
		if err := readField(r, f.name, f.v); err != nil {
			return err
		}
	}

	if sig.CertificationDataType != QE_REPORT_CERT_DATA_TYPE {
		return malformed("unsupported certification data type %v, expected %v (QE report certification data)",
			sig.CertificationDataType, QE_REPORT_CERT_DATA_TYPE)
	}
	if int64(sig.CertificationDataSize) != int64(r.Len()) {
		return malformed("certification data size %v does not match remaining %v bytes",
			sig.CertificationDataSize, r.Len())
	}

	if err := readField(r, "QE report", &sig.QEReport); err != nil {
		return err
	}
	if err := readField(r, "QE report signature", &sig.QEReportSignature); err != nil {
		return err
	}

	var authSize uint16
	if err := readField(r, "QE authentication data size", &authSize); err != nil {
		return err
	}
	authData, err := readBytes(r, "QE authentication data", int64(authSize))
	if err != nil {
		return err
	}
	sig.QEAuthData = authData

	if err := readField(r, "PCK certification data type", &sig.PckCertDataType); err != nil {
		return err
	}
	if sig.PckCertDataType != PCK_CERT_CHAIN_DATA_TYPE {
		return malformed("unsupported QE certification data type %v, expected %v (PCK cert chain)",
			sig.PckCertDataType, PCK_CERT_CHAIN_DATA_TYPE)
	}

	var certSize uint32
	if err := readField(r, "PCK certification data size", &certSize); err != nil {
		return err
	}
	if int64(certSize) != int64(r.Len()) {
		return malformed("PCK certification data size %v does not match remaining %v bytes",
			certSize, r.Len())
	}
	chain, err := readBytes(r, "PCK certification data", int64(certSize))
	if err != nil {
		return err
	}
	sig.PckCertChain = chain

	return nil
}

func readField(r *bytes.Reader, name string, v any) error {
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		return malformed("%v exceeds signature data: %v", name, err)
	}
	return nil
}

func readBytes(r *bytes.Reader, name string, n int64) ([]byte, error) {
	if n > int64(r.Len()) {
		return nil, malformed("%v of %v bytes exceeds remaining %v bytes", name, n, r.Len())
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, malformed("failed to read %v: %v", name, err)
	}
	return b, nil
}

func (q *TdxQuote) String() string {
	return fmt.Sprintf("TDX quote v%v: MRTD %x, RTMR0 %x, RTMR1 %x, RTMR2 %x, RTMR3 %x, REPORTDATA %x",
		q.Header.Version, q.Body.MrTd, q.Body.RtMr0, q.Body.RtMr1, q.Body.RtMr2, q.Body.RtMr3,
		q.Body.ReportData)
}
