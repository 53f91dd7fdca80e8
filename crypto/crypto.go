// Package crypto keeps the SSH host key of the server.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io/fs"
	"os"

	"github.com/zond/mudcore"

	gossh "golang.org/x/crypto/ssh"
)

const (
	DefaultBits = 4096
)

// HostKey is an RSA key pair stored as a PEM private key and an
// authorized_keys formatted public key.
type HostKey struct {
	PrivKeyPath   string
	SSHPubKeyPath string
	// Bits of generated keys, DefaultBits if zero.
	Bits int
}

func (h HostKey) Generate() error {
	bits := h.Bits
	if bits == 0 {
		bits = DefaultBits
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return mudcore.WithStack(err)
	}

	keyPEM := pem.EncodeToMemory(
		&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
		})
	if err := os.WriteFile(h.PrivKeyPath, keyPEM, 0600); err != nil {
		return mudcore.WithStack(err)
	}

	pub, err := gossh.NewPublicKey(&privateKey.PublicKey)
	if err != nil {
		return mudcore.WithStack(err)
	}
	if err := os.WriteFile(h.SSHPubKeyPath, gossh.MarshalAuthorizedKey(pub), 0600); err != nil {
		return mudcore.WithStack(err)
	}

	return nil
}

// Ensure generates the pair unless the private key exists, and returns the
// private key PEM.
func (h HostKey) Ensure() (pemBytes []byte, generated bool, err error) {
	if _, err := os.Stat(h.PrivKeyPath); errors.Is(err, fs.ErrNotExist) {
		if err := h.Generate(); err != nil {
			return nil, false, err
		}
		generated = true
	} else if err != nil {
		return nil, false, mudcore.WithStack(err)
	}
	if pemBytes, err = os.ReadFile(h.PrivKeyPath); err != nil {
		return nil, false, mudcore.WithStack(err)
	}
	if _, err := gossh.ParsePrivateKey(pemBytes); err != nil {
		return nil, false, mudcore.WithStack(err)
	}
	return pemBytes, generated, nil
}

// Fingerprint returns the SHA256 fingerprint of the public half of a PEM
// private key.
func Fingerprint(pemBytes []byte) (string, error) {
	signer, err := gossh.ParsePrivateKey(pemBytes)
	if err != nil {
		return "", mudcore.WithStack(err)
	}
	return gossh.FingerprintSHA256(signer.PublicKey()), nil
}
