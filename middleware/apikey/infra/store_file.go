package infra

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"apikey-gateway/middleware/apikey/domain"
)

// FileStore persiste o snapshot como um documento JSON.
//
// Save grava num arquivo temporário no mesmo diretório, faz fsync e renomeia por
// cima do destino: leitores veem o snapshot antigo inteiro ou o novo inteiro.
type FileStore struct {
	path string
	perm fs.FileMode
}

type FileStoreOption func(*FileStore)

func WithFileMode(perm fs.FileMode) FileStoreOption {
	return func(s *FileStore) { s.perm = perm }
}

func NewFileStore(path string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{path: path, perm: 0o600}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		empty := domain.Snapshot{}
		if err := s.Save(ctx, empty); err != nil {
			return nil, err
		}
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return decodeSnapshot(b)
}

func (s *FileStore) Save(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, s.perm); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	committed = true
	return nil
}
