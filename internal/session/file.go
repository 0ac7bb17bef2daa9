package session

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/ytget/cilicili/internal/model"
)

// Encrypted file layout: magic | salt | nonce | ciphertext
const (
	fileMagic   = "CILI1"
	saltSize    = 16
	keySize     = chacha20poly1305.KeySize
	fileMode    = 0o600
	dirMode     = 0o700
	argonTime   = 1
	argonMemory = 64 * 1024
	argonLanes  = 4
)

// FileStorage keeps the session in a single encrypted file. The key is
// derived from secret with argon2id and a per-write random salt.
type FileStorage struct {
	path   string
	secret []byte
}

// NewFileStorage creates a storage writing to path
func NewFileStorage(path string, secret []byte) *FileStorage {
	s := make([]byte, len(secret))
	copy(s, secret)
	return &FileStorage{path: path, secret: s}
}

// Path returns the file location
func (f *FileStorage) Path() string {
	return f.path
}

// Save encrypts and atomically replaces the session file
func (f *FileStorage) Save(_ context.Context, s model.StoredSession) error {
	plaintext, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	aead, err := chacha20poly1305.NewX(f.deriveKey(salt))
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(fileMagic)
	buf.Write(salt)
	buf.Write(nonce)
	buf.Write(aead.Seal(nil, nonce, plaintext, []byte(fileMagic)))

	if err := os.MkdirAll(filepath.Dir(f.path), dirMode); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return writeFileAtomic(f.path, buf.Bytes())
}

// Load decrypts the session file; a missing file yields nil
func (f *FileStorage) Load(_ context.Context) (*model.StoredSession, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	nonceSize := chacha20poly1305.NonceSizeX
	header := len(fileMagic) + saltSize + nonceSize
	if len(data) < header || string(data[:len(fileMagic)]) != fileMagic {
		return nil, ErrCorruptSession
	}
	salt := data[len(fileMagic) : len(fileMagic)+saltSize]
	nonce := data[len(fileMagic)+saltSize : header]

	aead, err := chacha20poly1305.NewX(f.deriveKey(salt))
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, data[header:], []byte(fileMagic))
	if err != nil {
		return nil, ErrCorruptSession
	}

	var s model.StoredSession
	if err := json.Unmarshal(plaintext, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w: %w", ErrCorruptSession, err)
	}
	return &s, nil
}

// Clear deletes the session file
func (f *FileStorage) Clear(_ context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (f *FileStorage) deriveKey(salt []byte) []byte {
	return argon2.IDKey(f.secret, salt, argonTime, argonMemory, argonLanes, keySize)
}
