package localstore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/pbkdf2"

	"github.com/open-rails/licensekit/storage"
)

// Key-derivation and cipher parameters for the encrypted secret blob.
const (
	pbkdf2Iterations = 150_000
	saltSize         = 16
	ivSize           = 12
	keySize          = 32 // AES-256
)

const (
	saltFileName   = "salt.json"
	secretFileName = "secret.json"

	secretBlobVersion = 1
)

type saltBlob struct {
	Version int    `json:"version"`
	Salt    string `json:"salt"` // base64
}

type secretBlob struct {
	Version    int    `json:"version"`
	IV         string `json:"iv"`         // base64, fresh per save
	Ciphertext string `json:"ciphertext"` // base64
}

// SecretFile stores the refresh-token secret encrypted at rest: AES-GCM-256
// under a key derived with PBKDF2 (SHA-256, 150k iterations) from a device
// fingerprint. The random salt is generated once and persisted beside the
// secret; a fresh 12-byte IV is generated on every save.
type SecretFile struct {
	dir         string
	fingerprint string
	log         logrus.FieldLogger
}

// NewSecretFile creates the encrypted local secret store. fingerprint is a
// stable device/environment string; it is a key input, not a password the
// user chose, so the derived key only raises the bar against casual reads.
func NewSecretFile(dir, fingerprint string, log logrus.FieldLogger) *SecretFile {
	if log == nil {
		log = discardLogger()
	}
	return &SecretFile{dir: dir, fingerprint: fingerprint, log: log}
}

func (s *SecretFile) saltPath() string   { return filepath.Join(s.dir, saltFileName) }
func (s *SecretFile) secretPath() string { return filepath.Join(s.dir, secretFileName) }

// loadOrCreateSalt returns the persisted salt, generating and persisting a
// new one on first use.
func (s *SecretFile) loadOrCreateSalt() ([]byte, error) {
	if data, err := os.ReadFile(s.saltPath()); err == nil {
		var blob saltBlob
		if err := json.Unmarshal(data, &blob); err == nil {
			if salt, err := base64.StdEncoding.DecodeString(blob.Salt); err == nil && len(salt) == saltSize {
				return salt, nil
			}
		}
		s.log.WithField("file", s.saltPath()).Warn("corrupted salt blob; regenerating")
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	data, err := json.Marshal(saltBlob{Version: secretBlobVersion, Salt: base64.StdEncoding.EncodeToString(salt)})
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.saltPath(), data, 0o600); err != nil {
		return nil, err
	}
	return salt, nil
}

func (s *SecretFile) aead() (cipher.AEAD, error) {
	salt, err := s.loadOrCreateSalt()
	if err != nil {
		return nil, err
	}
	key := pbkdf2.Key([]byte(s.fingerprint), salt, pbkdf2Iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s *SecretFile) Load(_ context.Context) (string, bool, error) {
	data, err := os.ReadFile(s.secretPath())
	if err != nil {
		return "", false, nil
	}
	var blob secretBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		s.log.WithError(err).Warn("corrupted secret blob; treating as absent")
		return "", false, nil
	}
	iv, err := base64.StdEncoding.DecodeString(blob.IV)
	if err != nil || len(iv) != ivSize {
		s.log.Warn("corrupted secret IV; treating as absent")
		return "", false, nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	if err != nil {
		s.log.Warn("corrupted secret ciphertext; treating as absent")
		return "", false, nil
	}

	aead, err := s.aead()
	if err != nil {
		return "", false, err
	}
	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		// Fingerprint changed or blob tampered with. Either way the secret
		// is unrecoverable; report absence.
		s.log.WithError(err).Warn("secret blob failed to decrypt; treating as absent")
		return "", false, nil
	}
	return string(plaintext), true, nil
}

func (s *SecretFile) Save(_ context.Context, secret string) error {
	if s.fingerprint == "" {
		return errors.New("localstore: empty device fingerprint")
	}
	aead, err := s.aead()
	if err != nil {
		return err
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return err
	}
	ciphertext := aead.Seal(nil, iv, []byte(secret), nil)

	data, err := json.Marshal(secretBlob{
		Version:    secretBlobVersion,
		IV:         base64.StdEncoding.EncodeToString(iv),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.secretPath(), data, 0o600)
}

func (s *SecretFile) Clear(_ context.Context) error {
	err := os.Remove(s.secretPath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Strategy identifies this store as the encrypted local fallback.
func (s *SecretFile) Strategy() storage.Strategy {
	return storage.StrategyEncryptedLocalStorage
}
