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
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Fraunhofer-AISEC/attestation-service/internal"
	"github.com/google/go-tdx-guest/abi"
	"github.com/google/go-tdx-guest/pcs"
	"github.com/google/go-tdx-guest/verify"
)

const (
	CN_ROOT_CERT         = "Intel SGX Root CA"
	CN_PLATFORM_CA_CERT  = "Intel SGX PCK Platform CA"
	CN_PROCESSOR_CA_CERT = "Intel SGX PCK Processor CA"
	CN_PCK_CERT          = "Intel SGX PCK Certificate"
	CN_TCB_SIGNING       = "Intel SGX TCB Signing"
)

// OID of the SGX extensions of a PCK certificate
var oidSgxExtensions = asn1.ObjectIdentifier{1, 2, 840, 113741, 1, 13, 1}

// QuoteVerifier verifies the signature and certificate chain of a raw quote
// and returns claims derived from the verified certificates
type QuoteVerifier interface {
	VerifyQuote(raw []byte, quote *TdxQuote) (Claims, error)
}

type DcapConfig struct {
	GetCollateral    bool `json:"getCollateral"`
	CheckRevocations bool `json:"checkRevocations"`
}

// DcapVerifier verifies TDX quotes with the Intel DCAP quote verification
// of go-tdx-guest against the embedded Intel SGX Root CA
type DcapVerifier struct {
	config DcapConfig
}

func NewDcapVerifier(c DcapConfig) *DcapVerifier {
	return &DcapVerifier{config: c}
}

func (v *DcapVerifier) VerifyQuote(raw []byte, quote *TdxQuote) (Claims, error) {
	pb, err := abi.QuoteToProto(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert quote: %w", err)
	}

	opts := verify.DefaultOptions()
	opts.GetCollateral = v.config.GetCollateral
	opts.CheckRevocations = v.config.CheckRevocations

	if err := verify.TdxQuote(pb, opts); err != nil {
		return nil, fmt.Errorf("DCAP quote verification failed: %w", err)
	}
	log.Debug("Quote DCAP check succeeded")

	certs, err := quote.PckCertChain()
	if err != nil {
		return nil, fmt.Errorf("failed to parse PCK certificate chain: %w", err)
	}

	return PckClaims(certs.PCKCert)
}

// PckClaims returns the platform claims of the SGX extensions of a PCK
// certificate under the "pck" key
func PckClaims(pck *x509.Certificate) (Claims, error) {
	if pck == nil {
		return nil, errors.New("PCK certificate missing")
	}

	exts, err := pcs.PckCertificateExtensions(pck)
	if err != nil {
		return nil, fmt.Errorf("failed to get PCK certificate extensions: %w", err)
	}
	log.Tracef("PCK FMSPC: %v", exts.FMSPC)

	sgxExts, err := GetSGXExtensions(pck)
	if err != nil {
		return nil, err
	}

	return Claims{
		"pck": map[string]any{
			"fmspc":        exts.FMSPC,
			"pceid":        hex.EncodeToString(sgxExts.PceId.Value),
			"pce_svn":      sgxExts.Tcb.Value.PceSvn.Value,
			"cpu_svn":      hex.EncodeToString(sgxExts.Tcb.Value.CpuSvn.Value),
			"tcb_comp_svn": sgxExts.Tcb.compSvns(),
			"sgx_type":     int(sgxExts.SgxType.Value),
		},
	}, nil
}

type SgxCertificates struct {
	RootCACert       *x509.Certificate
	IntermediateCert *x509.Certificate // Processor or Platform
	PCKCert          *x509.Certificate
	TCBSigningCert   *x509.Certificate
}

// ParseCertificates parses a PEM formatted Intel certificate chain and sorts
// the certificates by their common name
func ParseCertificates(pem []byte) (SgxCertificates, error) {
	var certChain SgxCertificates

	certs, err := internal.ParseCertsPem(pem)
	if err != nil {
		return SgxCertificates{}, fmt.Errorf("failed to parse certificates: %w", err)
	}

	log.Tracef("Parsing %v certificates", len(certs))
	for _, v := range certs {
		switch v.Subject.CommonName {
		case CN_PCK_CERT:
			certChain.PCKCert = v
		case CN_PROCESSOR_CA_CERT, CN_PLATFORM_CA_CERT:
			certChain.IntermediateCert = v
		case CN_ROOT_CERT:
			certChain.RootCACert = v
		case CN_TCB_SIGNING:
			certChain.TCBSigningCert = v
		default:
			return SgxCertificates{}, fmt.Errorf("unknown certificate type %v", v.Subject.CommonName)
		}
		log.Tracef("Parsed certificate CN=%v", v.Subject.CommonName)
	}

	return certChain, nil
}

// ------------------------- start SGX Extensions -------------------------

type SGXExtensionsValue struct {
	// required:
	Ppid    PPID
	Tcb     TCB
	PceId   PCEID
	Fmspc   FMSPC
	SgxType SGXTYPE

	// optional:
	PlatformInstanceId PlatformInstanceId
	Configuration      Configuration
}

type PPID struct {
	Id    asn1.ObjectIdentifier
	Value []byte
}

type TCB struct {
	Id    asn1.ObjectIdentifier
	Value struct {
		Comp_01 TCBComp
		Comp_02 TCBComp
		Comp_03 TCBComp
		Comp_04 TCBComp
		Comp_05 TCBComp
		Comp_06 TCBComp
		Comp_07 TCBComp
		Comp_08 TCBComp
		Comp_09 TCBComp
		Comp_10 TCBComp
		Comp_11 TCBComp
		Comp_12 TCBComp
		Comp_13 TCBComp
		Comp_14 TCBComp
		Comp_15 TCBComp
		Comp_16 TCBComp
		PceSvn  TCBComp
		CpuSvn  struct {
			Svn   asn1.ObjectIdentifier
			Value []byte
		}
	}
}

type TCBComp struct {
	Svn   asn1.ObjectIdentifier
	Value int
}

type PCEID struct {
	Id    asn1.ObjectIdentifier
	Value []byte
}

type FMSPC struct {
	Id    asn1.ObjectIdentifier
	Value []byte
}

type SGXTYPE struct {
	Id    asn1.ObjectIdentifier
	Value asn1.Enumerated
}

type PlatformInstanceId struct {
	Id    asn1.ObjectIdentifier
	Value []byte
}

// ConfigurationId determines the type of the ConfigurationValue:
// [0]: dynamicPlatform, [1]: cachedKeys, [2]: sMTenabled
type Configuration struct {
	Id    asn1.ObjectIdentifier
	Value []struct {
		ConfigurationId    asn1.ObjectIdentifier
		ConfigurationValue bool
	}
}

// GetSGXExtensions looks up and parses the SGX extensions of a PCK certificate
func GetSGXExtensions(cert *x509.Certificate) (SGXExtensionsValue, error) {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(oidSgxExtensions) {
			continue
		}
		var seq asn1.RawValue
		if _, err := asn1.Unmarshal(ext.Value, &seq); err != nil {
			return SGXExtensionsValue{}, fmt.Errorf("failed to decode SGX extensions sequence: %w", err)
		}
		return ParseSGXExtensions(seq.Bytes)
	}
	return SGXExtensionsValue{}, errors.New("PCK certificate does not contain SGX extensions")
}

func ParseSGXExtensions(extensions []byte) (SGXExtensionsValue, error) {
	var sgx_extensions SGXExtensionsValue

	rest, err := asn1.Unmarshal(extensions, &sgx_extensions.Ppid)
	if err != nil {
		return SGXExtensionsValue{}, fmt.Errorf("failed to decode SGX Extensions PPID %v", err)
	}
	rest, err = asn1.Unmarshal(rest, &sgx_extensions.Tcb)
	if err != nil || len(rest) == 0 {
		return SGXExtensionsValue{}, fmt.Errorf("failed to decode SGX extensions TCB %v", err)
	}
	rest, err = asn1.Unmarshal(rest, &sgx_extensions.PceId)
	if err != nil || len(rest) == 0 {
		return SGXExtensionsValue{}, fmt.Errorf("failed to decode SGX Extensions PCEID %v", err)
	}
	rest, err = asn1.Unmarshal(rest, &sgx_extensions.Fmspc)
	if err != nil || len(rest) == 0 {
		return SGXExtensionsValue{}, fmt.Errorf("failed to decode SGX Extensions FMSPC %v", err)
	}
	rest, err = asn1.Unmarshal(rest, &sgx_extensions.SgxType)
	if err != nil {
		return SGXExtensionsValue{}, fmt.Errorf("failed to decode SGX Extensions SGXTYPE %v", err)
	} else if len(rest) > 0 {
		// parse optional parameters
		rest, err = asn1.Unmarshal(rest, &sgx_extensions.PlatformInstanceId)
		if err != nil || len(rest) == 0 {
			return SGXExtensionsValue{}, fmt.Errorf("failed to decode SGX extensions PlatfromInstanceId %v", err)
		}
		rest, err = asn1.Unmarshal(rest, &sgx_extensions.Configuration)
		if err != nil || len(rest) != 0 {
			return SGXExtensionsValue{}, fmt.Errorf("failed to decode SGX extensions Configuration %v", err)
		}
	}

	return sgx_extensions, nil
}

// compSvns returns the SVNs of the 16 SGX TCB components in order
func (t TCB) compSvns() []int {
	v := t.Value
	return []int{
		v.Comp_01.Value, v.Comp_02.Value, v.Comp_03.Value, v.Comp_04.Value,
		v.Comp_05.Value, v.Comp_06.Value, v.Comp_07.Value, v.Comp_08.Value,
		v.Comp_09.Value, v.Comp_10.Value, v.Comp_11.Value, v.Comp_12.Value,
		v.Comp_13.Value, v.Comp_14.Value, v.Comp_15.Value, v.Comp_16.Value,
	}
}
