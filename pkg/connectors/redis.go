// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package connectors

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rapidaai/recorder/pkg/commons"
	"github.com/rapidaai/recorder/pkg/configs"
)

type RedisConnector interface {
	Connector
	GetConnection() *redis.Client
}

type redisConnector struct {
	cfg    *configs.RedisConfig
	logger commons.Logger
	client *redis.Client
}

func NewRedisConnector(cfg *configs.RedisConfig, logger commons.Logger) RedisConnector {
	return &redisConnector{cfg: cfg, logger: logger}
}

// NewRedisConnectorWithClient wraps an existing client.
func NewRedisConnectorWithClient(client *redis.Client, logger commons.Logger) RedisConnector {
	return &redisConnector{client: client, logger: logger}
}

func (c *redisConnector) Name() string {
	if c.cfg == nil {
		return "REDIS"
	}
	return fmt.Sprintf("REDIS redis://%s/%d", c.cfg.Addr(), c.cfg.Db)
}

func (c *redisConnector) Connect(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	opts := &redis.Options{
		Addr:     c.cfg.Addr(),
		Username: c.cfg.Auth.User,
		Password: c.cfg.Auth.Password,
		DB:       c.cfg.Db,
	}
	if c.cfg.MaxConnection > 0 {
		opts.PoolSize = c.cfg.MaxConnection
	}
	if c.cfg.InsecureSkipTLS {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Errorf("failed to connect %s: %v", c.Name(), err)
		return err
	}
	c.client = client
	c.logger.Infof("connected to %s", c.Name())
	return nil
}

func (c *redisConnector) GetConnection() *redis.Client {
	return c.client
}

func (c *redisConnector) IsConnected(ctx context.Context) bool {
	if c.client == nil {
		return false
	}
	return c.client.Ping(ctx).Err() == nil
}

func (c *redisConnector) Disconnect(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	c.logger.Debugf("disconnecting %s", c.Name())
	return c.client.Close()
}
