package ws

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/youmark/pkcs8"
)

const (
	DefaultCAFile   = "ca.crt"
	DefaultCertFile = "client.crt"
	DefaultKeyFile  = "client.key"
)

var errNoPeerCertificate = errors.New("server presented no certificate")

// TLSFiles locates the client's TLS material on disk.
type TLSFiles struct {
	CAFile     string
	CertFile   string
	KeyFile    string
	Passphrase string
	// VerifyHostname turns on the server name check. Without it the chain
	// is still verified against the CA pool.
	VerifyHostname bool
}

// LoadTLSConfig reads the CA bundle and the client key pair. The private
// key may be a legacy encrypted PEM block or an encrypted PKCS#8 block.
func LoadTLSConfig(files TLSFiles) (*tls.Config, error) {
	caFile := orDefault(files.CAFile, DefaultCAFile)
	certFile := orDefault(files.CertFile, DefaultCertFile)
	keyFile := orDefault(files.KeyFile, DefaultKeyFile)

	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file failed: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}

	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("read cert file failed: %w", err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read key file failed: %w", err)
	}
	keyPEM, err = decryptKey(keyPEM, files.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("load key %s failed: %w", keyFile, err)
	}
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("load key pair failed: %w", err)
	}

	return NewTLSConfig(pool, []tls.Certificate{pair}, files.VerifyHostname), nil
}

// NewTLSConfig builds a client config trusting pool. With verifyHostname
// false the server name is ignored but the chain must still verify.
func NewTLSConfig(pool *x509.CertPool, certs []tls.Certificate, verifyHostname bool) *tls.Config {
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		RootCAs:      pool,
		Certificates: certs,
	}
	if verifyHostname {
		return cfg
	}
	cfg.InsecureSkipVerify = true
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return errNoPeerCertificate
		}
		opts := x509.VerifyOptions{
			Roots:         pool,
			Intermediates: x509.NewCertPool(),
		}
		for _, cert := range cs.PeerCertificates[1:] {
			opts.Intermediates.AddCert(cert)
		}
		_, err := cs.PeerCertificates[0].Verify(opts)
		return err
	}
	return cfg
}

// decryptKey returns an unencrypted PEM private key.
func decryptKey(keyPEM []byte, passphrase string) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	switch {
	case block.Type == "ENCRYPTED PRIVATE KEY":
		key, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, []byte(passphrase))
		if err != nil {
			return nil, err
		}
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return nil, err
		}
		return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil

	//nolint:staticcheck // legacy RFC 1423 keys are still produced by openssl -des3
	case x509.IsEncryptedPEMBlock(block):
		der, err := x509.DecryptPEMBlock(block, []byte(passphrase)) //nolint:staticcheck
		if err != nil {
			return nil, err
		}
		return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
	}

	return keyPEM, nil
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
