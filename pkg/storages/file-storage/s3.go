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

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/rapidaai/recorder/pkg/commons"
	"github.com/rapidaai/recorder/pkg/configs"
)

type s3Storage struct {
	bucket string
	cfg    configs.AssetStoreConfig
	logger commons.Logger
}

func NewS3Storage(cfg configs.AssetStoreConfig, logger commons.Logger) Storage {
	return &s3Storage{bucket: cfg.StoragePathPrefix, cfg: cfg, logger: logger}
}

func (s *s3Storage) Name() string {
	return string(configs.S3)
}

func (s *s3Storage) session() (*session.Session, error) {
	awsCfg := aws.NewConfig()
	if auth := s.cfg.Auth; auth != nil {
		awsCfg = awsCfg.WithRegion(auth.Region)
		if auth.AccessKey != "" {
			awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(auth.AccessKey, auth.SecretKey, ""))
		}
		if auth.Endpoint != "" {
			awsCfg = awsCfg.WithEndpoint(auth.Endpoint).WithS3ForcePathStyle(true)
		}
	}
	return session.NewSession(awsCfg)
}

func (s *s3Storage) Store(ctx context.Context, key string, body io.Reader) StorageOutput {
	sess, err := s.session()
	if err != nil {
		return StorageOutput{StorageType: configs.S3, Error: fmt.Errorf("failed to create aws session: %w", err)}
	}
	uploader := s3manager.NewUploader(sess)
	out, err := uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		s.logger.Errorf("failed to upload %s to bucket %s: %v", key, s.bucket, err)
		return StorageOutput{StorageType: configs.S3, Error: err}
	}
	s.logger.Debugf("uploaded %s to %s", key, out.Location)
	return StorageOutput{CompletePath: out.Location, StorageType: configs.S3}
}

func (s *s3Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	sess, err := s.session()
	if err != nil {
		return nil, err
	}
	out, err := s3.New(sess).GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from bucket %s: %w", key, s.bucket, err)
	}
	return out.Body, nil
}

func (s *s3Storage) Delete(ctx context.Context, key string) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	_, err = s3.New(sess).DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}
