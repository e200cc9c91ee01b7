// Package utils provides logging and text helpers shared across Repolens.
package utils

import "go.uber.org/zap"

// NewLogger returns the process logger. Debug mode selects the development
// config (human-readable console output, debug level); otherwise the
// production config (JSON, info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
