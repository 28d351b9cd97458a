// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package storage_files

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rapidaai/recorder/pkg/commons"
	"github.com/rapidaai/recorder/pkg/configs"
)

type localStorage struct {
	root   string
	logger commons.Logger
}

func NewLocalStorage(cfg configs.AssetStoreConfig, logger commons.Logger) Storage {
	return &localStorage{root: cfg.StoragePathPrefix, logger: logger}
}

func (s *localStorage) Name() string {
	return string(configs.LOCAL)
}

// resolve keeps keys inside the storage root.
func (s *localStorage) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	path := filepath.Join(s.root, clean)
	if !strings.HasPrefix(path, filepath.Clean(s.root)) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return path, nil
}

func (s *localStorage) Store(ctx context.Context, key string, body io.Reader) StorageOutput {
	path, err := s.resolve(key)
	if err != nil {
		return StorageOutput{StorageType: configs.LOCAL, Error: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return StorageOutput{StorageType: configs.LOCAL, Error: fmt.Errorf("failed to create directory: %w", err)}
	}
	f, err := os.Create(path)
	if err != nil {
		return StorageOutput{StorageType: configs.LOCAL, Error: fmt.Errorf("failed to create %s: %w", path, err)}
	}
	defer f.Close()
	n, err := io.Copy(f, body)
	if err != nil {
		return StorageOutput{StorageType: configs.LOCAL, Error: fmt.Errorf("failed to write %s: %w", path, err)}
	}
	s.logger.Debugf("stored %d bytes at %s", n, path)
	return StorageOutput{CompletePath: path, StorageType: configs.LOCAL}
}

func (s *localStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (s *localStorage) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
