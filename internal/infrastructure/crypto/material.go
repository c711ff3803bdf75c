package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/turtacn/credcore/pkg/errors"
)

// MinRSAKeyBits is the smallest RSA modulus accepted for RS256 signing.
const MinRSAKeyBits = 2048

// ParseRSAPrivateKeyPEM decodes a PKCS#1 or PKCS#8 PEM encoded RSA private key.
func ParseRSAPrivateKeyPEM(material []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(material)
	if block == nil {
		return nil, errors.ErrInvalidArgument.WithMessage("key material is not PEM encoded")
	}

	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, errors.ErrInvalidArgument.WithMessage("invalid PKCS#1 private key").WithCause(err)
		}
		key = k
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, errors.ErrInvalidArgument.WithMessage("invalid PKCS#8 private key").WithCause(err)
		}
		k, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.ErrInvalidArgument.WithMessage("PKCS#8 key is not an RSA key")
		}
		key = k
	default:
		return nil, errors.ErrInvalidArgument.WithMessage("unsupported PEM block %q", block.Type)
	}

	if key.N.BitLen() < MinRSAKeyBits {
		return nil, errors.ErrInvalidArgument.WithMessage("RSA key must be at least %d bits", MinRSAKeyBits)
	}
	return key, nil
}

// GenerateRSAKeyPEM generates an RSA private key and returns it PKCS#1 PEM encoded.
func GenerateRSAKeyPEM(bits int) ([]byte, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privateKeyBlock := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}
	return pem.EncodeToMemory(privateKeyBlock), nil
}
