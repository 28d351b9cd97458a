// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package connectors

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/rapidaai/recorder/pkg/commons"
	"github.com/rapidaai/recorder/pkg/configs"
)

type PostgresConnector interface {
	Connector
	DB(ctx context.Context) *gorm.DB
}

type postgresConnector struct {
	cfg    *configs.PostgresConfig
	logger commons.Logger
	db     *gorm.DB
}

func NewPostgresConnector(cfg *configs.PostgresConfig, logger commons.Logger) PostgresConnector {
	return &postgresConnector{cfg: cfg, logger: logger}
}

// NewPostgresConnectorWithDB wraps an already opened gorm handle.
func NewPostgresConnectorWithDB(db *gorm.DB, logger commons.Logger) PostgresConnector {
	return &postgresConnector{db: db, logger: logger}
}

func (c *postgresConnector) Name() string {
	if c.cfg == nil {
		return "PSQL"
	}
	return fmt.Sprintf("PSQL postgres://%s:%d/%s", c.cfg.Host, c.cfg.Port, c.cfg.DBName)
}

func (c *postgresConnector) Connect(ctx context.Context) error {
	if c.db != nil {
		return nil
	}
	db, err := gorm.Open(postgres.Open(c.cfg.DSN()), &gorm.Config{
		Logger:                 gorm_logger.Default.LogMode(gorm_logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		c.logger.Errorf("failed to open postgres connection %s: %v", c.Name(), err)
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if c.cfg.MaxOpenConnection > 0 {
		sqlDB.SetMaxOpenConns(c.cfg.MaxOpenConnection)
	}
	if c.cfg.MaxIdealConnection > 0 {
		sqlDB.SetMaxIdleConns(c.cfg.MaxIdealConnection)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping %s: %w", c.Name(), err)
	}
	c.db = db
	c.logger.Infof("connected to %s", c.Name())
	return nil
}

func (c *postgresConnector) DB(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx)
}

func (c *postgresConnector) IsConnected(ctx context.Context) bool {
	if c.db == nil {
		return false
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}

func (c *postgresConnector) Disconnect(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	c.logger.Debugf("disconnecting %s", c.Name())
	return sqlDB.Close()
}
