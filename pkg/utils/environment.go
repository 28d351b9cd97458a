// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package utils

import "strings"

// RapidaEnvironment is the deployment environment of a service.
type RapidaEnvironment string

const (
	PRODUCTION  RapidaEnvironment = "production"
	DEVELOPMENT RapidaEnvironment = "development"
)

func (e RapidaEnvironment) Get() string {
	return string(e)
}

// IsProduction reports whether logging and gin should run in release mode.
func (e RapidaEnvironment) IsProduction() bool {
	return e == PRODUCTION
}

// FromEnvironmentStr parses an environment name, falling back to development.
func FromEnvironmentStr(str string) RapidaEnvironment {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "production":
		return PRODUCTION
	default:
		return DEVELOPMENT
	}
}
