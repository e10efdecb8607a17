package certificates

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KeyAlgorithm selects the asymmetric algorithm of a generated key pair.
type KeyAlgorithm string

const (
	KeyAlgorithmRSA   KeyAlgorithm = "rsa"
	KeyAlgorithmECDSA KeyAlgorithm = "ecdsa"
)

// ParseKeyAlgorithm normalizes a user supplied algorithm name. Empty selects RSA.
func ParseKeyAlgorithm(rawValue string) (KeyAlgorithm, error) {
	switch KeyAlgorithm(strings.ToLower(strings.TrimSpace(rawValue))) {
	case "", KeyAlgorithmRSA:
		return KeyAlgorithmRSA, nil
	case KeyAlgorithmECDSA:
		return KeyAlgorithmECDSA, nil
	default:
		return "", fmt.Errorf("unsupported key algorithm %s", rawValue)
	}
}

// GeneratePrivateKey creates a key pair. rsaKeyBitSize is ignored for ECDSA, which always uses P-256.
func GeneratePrivateKey(randomnessSource io.Reader, algorithm KeyAlgorithm, rsaKeyBitSize int) (crypto.Signer, error) {
	switch algorithm {
	case KeyAlgorithmECDSA:
		ecdsaKey, err := ecdsa.GenerateKey(elliptic.P256(), randomnessSource)
		if err != nil {
			return nil, err
		}
		return ecdsaKey, nil
	case KeyAlgorithmRSA, "":
		rsaKey, err := rsa.GenerateKey(randomnessSource, rsaKeyBitSize)
		if err != nil {
			return nil, err
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported key algorithm %s", algorithm)
	}
}

func encodeCertificatePEM(certificateDer []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: certificatePemBlockType, Bytes: certificateDer})
}

func encodePrivateKeyPEM(privateKey crypto.Signer) ([]byte, error) {
	privateKeyDer, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: privateKeyPemBlockType, Bytes: privateKeyDer}), nil
}

func parseCertificateFromPEM(certificateBytes []byte) (*x509.Certificate, error) {
	for {
		block, rest := pem.Decode(certificateBytes)
		if block == nil {
			return nil, errors.New("no certificate PEM block found")
		}
		if block.Type == certificatePemBlockType {
			return x509.ParseCertificate(block.Bytes)
		}
		certificateBytes = rest
	}
}

// parsePrivateKeyFromPEM returns the first private key block, skipping certificates that
// precede it in a combined file.
func parsePrivateKeyFromPEM(privateKeyBytes []byte) (crypto.Signer, error) {
	var block *pem.Block
	for {
		block, privateKeyBytes = pem.Decode(privateKeyBytes)
		if block == nil {
			return nil, errors.New("no private key PEM block found")
		}
		if strings.HasSuffix(block.Type, privateKeyPemBlockType) {
			break
		}
	}
	if parsedKey, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		signer, ok := parsedKey.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", parsedKey)
		}
		return signer, nil
	}
	if rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return rsaKey, nil
	}
	if ecdsaKey, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return ecdsaKey, nil
	}
	return nil, fmt.Errorf("unsupported private key block %s", block.Type)
}

func isRSAPublicKey(publicKey crypto.PublicKey) bool {
	_, ok := publicKey.(*rsa.PublicKey)
	return ok
}
