package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/crypto"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/log"
)

// Ensure FileStore implements the Store interface
var _ Store = (*FileStore)(nil)

// FileStore persists the session blob to a single encrypted file. The
// bearer token never touches disk in the clear.
type FileStore struct {
	path      string
	encryptor crypto.Encryptor
}

// NewFileStore creates a file-backed store. The parent directory is created
// on the first Save, not here, so constructing a store has no side effects.
func NewFileStore(path string, encryptor crypto.Encryptor) *FileStore {
	return &FileStore{path: path, encryptor: encryptor}
}

func (s *FileStore) Load(_ context.Context) ([]byte, error) {
	ciphertext, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	plaintext, err := s.encryptor.Decrypt(ciphertext)
	if err != nil {
		log.LogWarnWithFields("storage", "Session file unreadable, treating as absent", map[string]any{
			"path": s.path,
		})
		return nil, ErrCorrupt
	}
	return plaintext, nil
}

func (s *FileStore) Save(_ context.Context, data []byte) error {
	ciphertext, err := s.encryptor.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	// Write-then-rename so a crash mid-write never leaves a torn file
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(ciphertext); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set session file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
