package security

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/ozone-scm/pkg/scmerrors"
)

const (
	// Certificate rotation threshold: rotate when less than 30 days remaining
	certRotationThreshold = 30 * 24 * time.Hour

	// Default certificate directory
	defaultCertDir = ".ozone-scm/certs"
)

// GetCertDir returns the on-disk certificate cache directory for a
// node's own leaf certificate and its root CA, keyed by node type
// (e.g. "scm") and node id so a multi-replica host keeps each
// replica's certs apart.
func GetCertDir(nodeType, nodeID string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", scmerrors.Wrap(scmerrors.SecurityInitFailed, err, "resolve home directory")
	}

	certDir := filepath.Join(homeDir, defaultCertDir, nodeType+"-"+nodeID)
	return certDir, nil
}

// GetCLICertDir returns the cert cache directory scmctl uses for its
// own client certificate.
func GetCLICertDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", scmerrors.Wrap(scmerrors.SecurityInitFailed, err, "resolve home directory")
	}

	certDir := filepath.Join(homeDir, defaultCertDir, "cli")
	return certDir, nil
}

// SaveCertToFile writes a leaf certificate and its RSA private key to
// node.crt/node.key under certDir.
func SaveCertToFile(cert *tls.Certificate, certDir string) error {
	if err := os.MkdirAll(certDir, 0700); err != nil {
		return scmerrors.Wrap(scmerrors.IoFailed, err, "create cert directory")
	}

	certPath := filepath.Join(certDir, "node.crt")
	certPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Certificate[0],
	})
	if err := os.WriteFile(certPath, certPEM, 0600); err != nil {
		return scmerrors.Wrap(scmerrors.IoFailed, err, "write node certificate")
	}

	keyPath := filepath.Join(certDir, "node.key")
	privateKey, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return scmerrors.New(scmerrors.SecurityInitFailed, "node certificate's private key is not RSA")
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return scmerrors.Wrap(scmerrors.IoFailed, err, "write node private key")
	}

	return nil
}

// LoadCertFromFile loads the leaf certificate cached by SaveCertToFile.
func LoadCertFromFile(certDir string) (*tls.Certificate, error) {
	certPath := filepath.Join(certDir, "node.crt")
	keyPath := filepath.Join(certDir, "node.key")

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.IoFailed, err, "load cached node certificate")
	}

	if cert.Leaf == nil {
		x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, scmerrors.Wrap(scmerrors.Corruption, err, "parse cached node certificate")
		}
		cert.Leaf = x509Cert
	}

	return &cert, nil
}

// SaveCACertToFile caches the cluster root CA certificate alongside a
// node's own leaf cert, so ValidateCertChain can run against a cached
// chain without dialing the CA again.
func SaveCACertToFile(caCert []byte, certDir string) error {
	if err := os.MkdirAll(certDir, 0700); err != nil {
		return scmerrors.Wrap(scmerrors.IoFailed, err, "create cert directory")
	}

	caPath := filepath.Join(certDir, "ca.crt")
	caPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: caCert,
	})
	if err := os.WriteFile(caPath, caPEM, 0644); err != nil {
		return scmerrors.Wrap(scmerrors.IoFailed, err, "write root CA certificate")
	}

	return nil
}

// LoadCACertFromFile loads the root CA certificate cached by
// SaveCACertToFile.
func LoadCACertFromFile(certDir string) (*x509.Certificate, error) {
	caPath := filepath.Join(certDir, "ca.crt")
	caPEM, err := os.ReadFile(caPath)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.IoFailed, err, "read cached root CA certificate")
	}

	block, _ := pem.Decode(caPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, scmerrors.New(scmerrors.Corruption, "cached root CA certificate is not a valid PEM block")
	}

	caCert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.Corruption, err, "parse cached root CA certificate")
	}

	return caCert, nil
}

// CertExists reports whether a full cert/key/ca trio is cached under
// certDir.
func CertExists(certDir string) bool {
	certPath := filepath.Join(certDir, "node.crt")
	keyPath := filepath.Join(certDir, "node.key")
	caPath := filepath.Join(certDir, "ca.crt")

	_, err1 := os.Stat(certPath)
	_, err2 := os.Stat(keyPath)
	_, err3 := os.Stat(caPath)

	return err1 == nil && err2 == nil && err3 == nil
}

// CertNeedsRotation reports whether cert is within certRotationThreshold
// of expiry, or nil.
func CertNeedsRotation(cert *x509.Certificate) bool {
	if cert == nil {
		return true
	}

	timeUntilExpiry := time.Until(cert.NotAfter)
	return timeUntilExpiry < certRotationThreshold
}

// GetCertExpiry returns the expiry time of the certificate
func GetCertExpiry(cert *x509.Certificate) time.Time {
	if cert == nil {
		return time.Time{}
	}
	return cert.NotAfter
}

// GetCertTimeRemaining returns the time remaining until certificate expiry
func GetCertTimeRemaining(cert *x509.Certificate) time.Duration {
	if cert == nil {
		return 0
	}
	return time.Until(cert.NotAfter)
}

// ValidateCertChain verifies that cert chains to ca and is usable for
// the mutual-TLS client/server auth this cluster relies on.
func ValidateCertChain(cert, ca *x509.Certificate) error {
	if cert == nil {
		return scmerrors.New(scmerrors.SecurityInitFailed, "certificate is nil")
	}
	if ca == nil {
		return scmerrors.New(scmerrors.SecurityInitFailed, "CA certificate is nil")
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	if _, err := cert.Verify(opts); err != nil {
		return scmerrors.Wrap(scmerrors.SecurityInitFailed, err, "certificate chain verification failed")
	}

	return nil
}

// GetCertInfo returns human-readable information about a certificate,
// as surfaced by `scmctl cert status`.
func GetCertInfo(cert *x509.Certificate) map[string]interface{} {
	if cert == nil {
		return map[string]interface{}{"error": "certificate is nil"}
	}

	return map[string]interface{}{
		"subject":       cert.Subject.CommonName,
		"issuer":        cert.Issuer.CommonName,
		"serial_number": cert.SerialNumber.String(),
		"not_before":    cert.NotBefore.Format(time.RFC3339),
		"not_after":     cert.NotAfter.Format(time.RFC3339),
		"is_ca":         cert.IsCA,
		"key_usage":     describeKeyUsage(cert.KeyUsage),
		"ext_key_usage": describeExtKeyUsage(cert.ExtKeyUsage),
	}
}

// describeKeyUsage converts x509.KeyUsage to human-readable string
func describeKeyUsage(usage x509.KeyUsage) []string {
	var usages []string
	if usage&x509.KeyUsageDigitalSignature != 0 {
		usages = append(usages, "DigitalSignature")
	}
	if usage&x509.KeyUsageKeyEncipherment != 0 {
		usages = append(usages, "KeyEncipherment")
	}
	if usage&x509.KeyUsageCertSign != 0 {
		usages = append(usages, "CertSign")
	}
	if usage&x509.KeyUsageCRLSign != 0 {
		usages = append(usages, "CRLSign")
	}
	return usages
}

// describeExtKeyUsage converts []x509.ExtKeyUsage to human-readable strings
func describeExtKeyUsage(usages []x509.ExtKeyUsage) []string {
	var result []string
	for _, usage := range usages {
		switch usage {
		case x509.ExtKeyUsageClientAuth:
			result = append(result, "ClientAuth")
		case x509.ExtKeyUsageServerAuth:
			result = append(result, "ServerAuth")
		}
	}
	return result
}

// RemoveCerts removes all cached certificates from a directory, used
// by `scmctl cert clean`.
func RemoveCerts(certDir string) error {
	if err := os.RemoveAll(certDir); err != nil {
		return scmerrors.Wrap(scmerrors.IoFailed, err, "remove cert directory")
	}
	return nil
}
