// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package configs

type StorageType string

const (
	LOCAL StorageType = "local"
	S3    StorageType = "s3"
)

type AwsConfig struct {
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Endpoint  string `mapstructure:"endpoint"`
}

// AssetStoreConfig selects where finalized recording files are kept.
// StoragePathPrefix is the bucket for s3 and the root directory for local.
type AssetStoreConfig struct {
	StorageType       StorageType `mapstructure:"storage_type" validate:"required,oneof=local s3"`
	StoragePathPrefix string      `mapstructure:"storage_path_prefix" validate:"required"`
	Auth              *AwsConfig  `mapstructure:"auth"`
}

func (c AssetStoreConfig) IsLocal() bool {
	return c.StorageType == LOCAL
}
