package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/location-engine/internal/domain/repository"
	"go.uber.org/zap"
)

// kvStore хранит каждое значение в отдельном файле каталога dir.
// Запись атомарна: временный файл, fsync, rename
type kvStore struct {
	dir    string
	logger *zap.Logger
}

func NewKVStore(dir string, logger *zap.Logger) (repository.KeyValueStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create kv dir %s: %w", dir, err)
	}

	logger.Info("File KV store initialized", zap.String("dir", dir))
	return &kvStore{dir: dir, logger: logger}, nil
}

func (s *kvStore) path(key string) string {
	return filepath.Join(s.dir, url.QueryEscape(key)+".bin")
}

func (s *kvStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv load %s: %w", key, err)
	}
	return data, nil
}

func (s *kvStore) Save(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := s.path(key)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("kv save %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("kv save %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("kv save %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kv save %s: %w", key, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kv save %s: %w", key, err)
	}

	s.logger.Debug("Key saved", zap.String("key", key), zap.String("file", target))
	return nil
}
