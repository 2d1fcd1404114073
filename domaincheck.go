// Package domaincheck decides whether domain names fall inside a forbidden domain set.
package domaincheck

import (
	"context"

	"go.uber.org/zap"
)

// Version is the current version of domaincheck-go.
const Version = "1.0.0"

// Service is the common service abstraction in this module.
type Service interface {
	// ZapField returns a [zap.Field] that identifies the service.
	ZapField() zap.Field

	// Start starts the service.
	Start(ctx context.Context) error

	// Stop stops the service.
	Stop() error
}
