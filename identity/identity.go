// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package identity manages TLS identity material and the sources which
// deliver new material to a running server.
package identity

import (
	"crypto/tls"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/pkcs12"
)

// Identity is a compiled TLS server identity: a certificate chain
// and its private key, ready to terminate connections.
type Identity struct {
	cert tls.Certificate
}

// New returns an Identity from an already parsed certificate.
func New(cert tls.Certificate) Identity {
	return Identity{cert: cert}
}

// FromPEM parses a PEM encoded certificate chain and private key.
func FromPEM(certPEM, keyPEM []byte) (Identity, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return Identity{}, InvalidMaterialError{Cause: err}
	}
	return Identity{cert: cert}, nil
}

// FromFiles reads a PEM encoded certificate chain and private key from disk.
func FromFiles(certFile, keyFile string) (Identity, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return Identity{}, InvalidMaterialError{Cause: err}
	}
	return Identity{cert: cert}, nil
}

// FromPKCS12 parses a PKCS#12 bundle containing a certificate and private key.
func FromPKCS12(data []byte, password string) (Identity, error) {
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return Identity{}, InvalidMaterialError{Cause: err}
	}

	var certPEM, keyPEM []byte
	for _, block := range blocks {
		b := pem.EncodeToMemory(block)
		if block.Type == "CERTIFICATE" {
			certPEM = append(certPEM, b...)
			continue
		}
		keyPEM = append(keyPEM, b...)
	}
	return FromPEM(certPEM, keyPEM)
}

// Certificate returns the underlying certificate.
func (id Identity) Certificate() tls.Certificate {
	return id.cert
}

// Config compiles the identity into a TLS config suitable for
// terminating server connections. ALPN advertises HTTP/2 and HTTP/1.1.
func (id Identity) Config() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{id.cert},
		NextProtos:   []string{"h2", "http/1.1"},
	}
}

// Load implements the Loader interface. An Identity is always
// already loaded so it simply returns itself.
func (id Identity) Load() (Identity, error) {
	return id, nil
}

// splitBundle partitions the PEM blocks of a combined bundle into
// certificate material and key material, preserving block order.
func splitBundle(bundle []byte) (certPEM, keyPEM []byte) {
	rest := bundle
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return certPEM, keyPEM
		}
		b := pem.EncodeToMemory(block)
		if block.Type == "CERTIFICATE" {
			certPEM = append(certPEM, b...)
			continue
		}
		keyPEM = append(keyPEM, b...)
	}
}

// InvalidMaterialError occurs when certificate or key material
// fails to parse into a usable identity.
type InvalidMaterialError struct {
	Cause error
}

// Error implements the error interface.
func (e InvalidMaterialError) Error() string {
	return fmt.Sprintf("invalid identity material: %s", e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e InvalidMaterialError) Unwrap() error {
	return e.Cause
}
