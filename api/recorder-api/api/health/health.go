// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package health_check_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/recorder/api/recorder-api/config"
	"github.com/rapidaai/recorder/pkg/commons"
	"github.com/rapidaai/recorder/pkg/connectors"
)

type HealthCheckApi struct {
	cfg        *config.AppConfig
	logger     commons.Logger
	connectors []connectors.Connector
}

func New(cfg *config.AppConfig, logger commons.Logger, deps ...connectors.Connector) *HealthCheckApi {
	return &HealthCheckApi{cfg: cfg, logger: logger, connectors: deps}
}

// Healthz reports that the process is up.
func (h *HealthCheckApi) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"healthy": true,
		"service": h.cfg.Name,
		"version": h.cfg.Version,
	})
}

// Readiness reports whether every connector is reachable.
func (h *HealthCheckApi) Readiness(c *gin.Context) {
	status := make(map[string]bool, len(h.connectors))
	ready := true
	for _, conn := range h.connectors {
		ok := conn.IsConnected(c.Request.Context())
		status[conn.Name()] = ok
		if !ok {
			h.logger.Warnf("readiness check failed for %s", conn.Name())
			ready = false
		}
	}
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"ready": ready, "connectors": status})
}
