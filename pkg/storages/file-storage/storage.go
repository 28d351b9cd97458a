// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package storage_files

import (
	"context"
	"io"

	"github.com/rapidaai/recorder/pkg/commons"
	"github.com/rapidaai/recorder/pkg/configs"
)

type StorageOutput struct {
	CompletePath string
	StorageType  configs.StorageType
	Error        error
}

// Storage keeps finalized recording assets.
type Storage interface {
	Name() string
	Store(ctx context.Context, key string, body io.Reader) StorageOutput
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

func NewStorage(cfg configs.AssetStoreConfig, logger commons.Logger) Storage {
	switch cfg.StorageType {
	case configs.S3:
		return NewS3Storage(cfg, logger)
	default:
		return NewLocalStorage(cfg, logger)
	}
}
