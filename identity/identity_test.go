// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func generatePEM(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func TestFromPEM(t *testing.T) {
	t.Run("valid pair parses", func(t *testing.T) {
		certPEM, keyPEM := generatePEM(t)

		id, err := FromPEM(certPEM, keyPEM)
		require.NoError(t, err)
		require.NotEmpty(t, id.Certificate().Certificate)
	})

	t.Run("garbage fails with InvalidMaterialError", func(t *testing.T) {
		_, err := FromPEM([]byte("not a cert"), []byte("not a key"))

		var ime InvalidMaterialError
		require.ErrorAs(t, err, &ime)
	})
}

func TestIdentity_Config(t *testing.T) {
	t.Run("alpn advertises h2 and http/1.1", func(t *testing.T) {
		certPEM, keyPEM := generatePEM(t)

		id, err := FromPEM(certPEM, keyPEM)
		require.NoError(t, err)

		cfg := id.Config()
		require.Equal(t, []string{"h2", "http/1.1"}, cfg.NextProtos)
		require.Len(t, cfg.Certificates, 1)
	})
}

func TestIdentity_Load(t *testing.T) {
	t.Run("an identity is its own loader", func(t *testing.T) {
		certPEM, keyPEM := generatePEM(t)

		id, err := FromPEM(certPEM, keyPEM)
		require.NoError(t, err)

		loaded, err := id.Load()
		require.NoError(t, err)
		require.Equal(t, id, loaded)
	})
}

func TestSplitBundle(t *testing.T) {
	t.Run("partitions certificate and key blocks", func(t *testing.T) {
		certPEM, keyPEM := generatePEM(t)

		bundle := append(append([]byte{}, keyPEM...), certPEM...)
		gotCert, gotKey := splitBundle(bundle)
		require.Equal(t, certPEM, gotCert)
		require.Equal(t, keyPEM, gotKey)
	})

	t.Run("empty input yields nothing", func(t *testing.T) {
		gotCert, gotKey := splitBundle(nil)
		require.Empty(t, gotCert)
		require.Empty(t, gotKey)
	})
}

func TestStore(t *testing.T) {
	t.Run("empty store reports not ready", func(t *testing.T) {
		var store Store

		_, ok := store.Latest()
		require.False(t, ok)

		_, err := store.GetCertificate(nil)
		require.Error(t, err)
	})

	t.Run("swap makes the identity visible", func(t *testing.T) {
		certPEM, keyPEM := generatePEM(t)
		id, err := FromPEM(certPEM, keyPEM)
		require.NoError(t, err)

		var store Store
		store.Swap(id)

		latest, ok := store.Latest()
		require.True(t, ok)
		require.Equal(t, id.Certificate().Certificate, latest.Certificate().Certificate)

		cert, err := store.GetCertificate(nil)
		require.NoError(t, err)
		require.Equal(t, id.Certificate().Certificate, cert.Certificate)
	})
}

func TestStatic(t *testing.T) {
	t.Run("delivers once then closes", func(t *testing.T) {
		certPEM, keyPEM := generatePEM(t)
		id, err := FromPEM(certPEM, keyPEM)
		require.NoError(t, err)

		src := Static(id)

		loader, ok := <-src.Updates()
		require.True(t, ok)

		loaded, err := loader.Load()
		require.NoError(t, err)
		require.Equal(t, id, loaded)

		_, ok = <-src.Updates()
		require.False(t, ok)
	})
}
