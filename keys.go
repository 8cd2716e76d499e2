package divide

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
)

// KeyManager owns the server's asymmetric key pair and the symmetric
// signing key. It is built once at startup and never mutated afterward,
// so concurrent reads need no locking.
type KeyManager struct {
	private      *rsa.PrivateKey
	publicDER    []byte
	symmetricKey []byte
	logger       Logger
}

// NewKeyManager wraps an existing key pair and symmetric key.
func NewKeyManager(private *rsa.PrivateKey, symmetricKey []byte) (*KeyManager, error) {
	der, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
	if err != nil {
		return nil, ErrCrypto
	}

	return &KeyManager{
		private:      private,
		publicDER:    der,
		symmetricKey: symmetricKey,
		logger:       defLogger{},
	}, nil
}

// GenerateKeyManager creates a fresh RSA key pair of the given size and a
// random 32-byte symmetric key. Intended for first boot and tests.
func GenerateKeyManager(bits int) (*KeyManager, error) {
	private, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, ErrCrypto
	}

	sym := make([]byte, 32)
	if _, err := rand.Read(sym); err != nil {
		return nil, ErrCrypto
	}

	return NewKeyManager(private, sym)
}

// WithLogger sets the logger used for decrypt diagnostics.
func (k *KeyManager) WithLogger(logger Logger) *KeyManager {
	if logger != nil {
		k.logger = logger
	}
	return k
}

// PublicKeyBytes returns the PKIX-encoded public key, the form clients
// fetch from /auth/key and feed to EncryptPassword.
func (k *KeyManager) PublicKeyBytes() []byte {
	out := make([]byte, len(k.publicDER))
	copy(out, k.publicDER)
	return out
}

// SymmetricKey returns the key the token service signs under.
func (k *KeyManager) SymmetricKey() []byte {
	return k.symmetricKey
}

// Decrypt recovers a plaintext the client sealed against the public key.
// Failures are logged with detail but surface only as ErrCrypto; the
// cause must never reach a caller, or it becomes a decryption oracle.
func (k *KeyManager) Decrypt(encoded string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		k.logger.Error("decrypt: base64 decode failed: %v", err)
		return "", ErrCrypto
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, k.private, ciphertext, nil)
	if err != nil {
		k.logger.Error("decrypt: rsa decrypt failed: %v", err)
		return "", ErrCrypto
	}

	return string(plaintext), nil
}

// ParsePublicKey decodes the PKIX bytes served by /auth/key.
func ParsePublicKey(der []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, ErrCrypto
	}

	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, ErrCrypto
	}

	return pub, nil
}

// EncryptPassword seals a password against the server's public key for
// transport, returning the base64 form Decrypt expects.
func EncryptPassword(pub *rsa.PublicKey, password string) (string, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, []byte(password), nil)
	if err != nil {
		return "", ErrCrypto
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Encryptable is the capability a record needs to move its password
// attribute between sealed and clear forms.
type Encryptable interface {
	SealPassword(pub *rsa.PublicKey) error
	UnsealPassword(keys *KeyManager) error
}

var _ Encryptable = (*Record)(nil)

// SealPassword replaces the record's password attribute with its sealed
// transport form.
func (r *Record) SealPassword(pub *rsa.PublicKey) error {
	sealed, err := EncryptPassword(pub, r.Password())
	if err != nil {
		return err
	}
	r.SetPassword(sealed)
	return nil
}

// UnsealPassword replaces the sealed password attribute with the
// recovered plaintext. Server-side only; the result must be hashed
// before the record persists.
func (r *Record) UnsealPassword(keys *KeyManager) error {
	plain, err := keys.Decrypt(r.Password())
	if err != nil {
		return err
	}
	r.SetPassword(plain)
	return nil
}
