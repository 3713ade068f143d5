package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	privateKeyFile = "rsa_private_key.pem"
	publicKeyFile  = "rsa_public_key.pem"
	rsaKeyBits     = 2048
)

// ErrDecrypt is returned when an encrypted password cannot be decrypted.
var ErrDecrypt = errors.New("password decryption failed")

// KeyManager holds the RSA key pair clients use to encrypt passwords before
// sending them.
type KeyManager struct {
	private   *rsa.PrivateKey
	publicPEM string
}

// LoadOrCreateKeys reads the key pair from dir, generating and persisting a
// new one when either file is missing.
func LoadOrCreateKeys(dir string) (*KeyManager, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}

	privPath := filepath.Join(dir, privateKeyFile)
	pubPath := filepath.Join(dir, publicKeyFile)

	privPEM, privErr := os.ReadFile(privPath)
	pubPEM, pubErr := os.ReadFile(pubPath)
	if privErr != nil || pubErr != nil {
		return generateKeys(privPath, pubPath)
	}

	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fmt.Errorf("decode private key: no PEM block in %s", privPath)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key in %s is not RSA", privPath)
	}

	return &KeyManager{private: priv, publicPEM: string(pubPEM)}, nil
}

func generateKeys(privPath, pubPath string) (*KeyManager, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	if err := os.WriteFile(privPath, privPEM, 0600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0644); err != nil {
		return nil, fmt.Errorf("write public key: %w", err)
	}

	return &KeyManager{private: priv, publicPEM: string(pubPEM)}, nil
}

// PublicKeyPEM returns the SubjectPublicKeyInfo PEM.
func (k *KeyManager) PublicKeyPEM() string {
	return k.publicPEM
}

// PublicKeyBase64 returns the PEM body without armour or newlines.
func (k *KeyManager) PublicKeyBase64() string {
	body := strings.ReplaceAll(k.publicPEM, "-----BEGIN PUBLIC KEY-----", "")
	body = strings.ReplaceAll(body, "-----END PUBLIC KEY-----", "")
	body = strings.ReplaceAll(body, "\n", "")
	return strings.TrimSpace(body)
}

// PublicKey exposes the key for callers that encrypt server side.
func (k *KeyManager) PublicKey() *rsa.PublicKey {
	return &k.private.PublicKey
}

// DecryptPassword decodes base64 and decrypts with PKCS#1 v1.5 padding.
func (k *KeyManager) DecryptPassword(encoded string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, k.private, ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: plaintext is not utf-8", ErrDecrypt)
	}
	return string(plain), nil
}

// EncryptPassword is the inverse of DecryptPassword.
func (k *KeyManager) EncryptPassword(plain string) (string, error) {
	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, &k.private.PublicKey, []byte(plain))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// ResolvePassword applies the login decryption rule: when encrypted is set
// the value must decrypt; otherwise decryption is attempted and the raw
// value is used if it fails.
func (k *KeyManager) ResolvePassword(value string, encrypted bool) (string, error) {
	plain, err := k.DecryptPassword(value)
	if err == nil {
		return plain, nil
	}
	if encrypted {
		return "", err
	}
	return value, nil
}
