// Package security handles the server's TLS identity: a self-signed
// certificate generated on first start, plus the SHA-256 fingerprint that
// paired clients pin against.
package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
)

const certValidity = 10 * 365 * 24 * time.Hour

// EnsureCertificate returns paths to cert.pem/key.pem under dir, generating
// a self-signed pair when none exists yet.
func EnsureCertificate(dir, commonName string) (certPath, keyPath string, err error) {
	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	if fileExists(certPath) && fileExists(keyPath) {
		return certPath, keyPath, nil
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", apperr.Internal(err, "cannot create certificate directory")
	}

	certPEM, keyPEM, err := createSelfSigned(commonName)
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return "", "", apperr.Internal(err, "cannot write certificate")
	}
	// The private key stays private.
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return "", "", apperr.Internal(err, "cannot write private key")
	}
	return certPath, keyPath, nil
}

// Fingerprint returns the SHA-256 hash of the certificate's DER encoding,
// hex encoded. This is the value clients pin after pairing.
func Fingerprint(certPath string) (string, error) {
	raw, err := os.ReadFile(certPath)
	if err != nil {
		return "", apperr.Internal(err, "cannot read certificate")
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "CERTIFICATE" {
		return "", apperr.Internal(errors.New("no CERTIFICATE block"), "malformed certificate %s", certPath)
	}
	sum := sha256.Sum256(block.Bytes)
	return hex.EncodeToString(sum[:]), nil
}

func createSelfSigned(commonName string) (certPEM, keyPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, apperr.Internal(err, "cannot generate private key")
	}

	maxSerial := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, maxSerial)
	if err != nil {
		return nil, nil, apperr.Internal(err, "cannot generate serial number")
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"PCLink"},
		},
		DNSNames:              []string{"localhost", commonName},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	// Template as its own parent makes this self signed.
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, apperr.Internal(err, "cannot create certificate")
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, apperr.Internal(err, "cannot marshal private key")
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
