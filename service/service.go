package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/database64128/domaincheck-go"
	"github.com/database64128/domaincheck-go/api"
	"github.com/database64128/domaincheck-go/checker"
	"github.com/database64128/domaincheck-go/dnsfilter"
	"github.com/database64128/domaincheck-go/stats"
	"go.uber.org/zap"
)

// Config is the main configuration structure.
// It may be marshaled as or unmarshaled from JSON.
type Config struct {
	Checker checker.Config   `json:"checker"`
	Stats   stats.Config     `json:"stats"`
	API     api.Config       `json:"api"`
	DNS     dnsfilter.Config `json:"dns"`
}

// Manager initializes the service manager.
//
// Initialization order: checker -> API -> DNS filter
func (sc *Config) Manager(logger *zap.Logger) (*Manager, error) {
	if !sc.API.Enabled && !sc.DNS.Enabled {
		return nil, errors.New("no services to start")
	}

	statsConfig := sc.Stats
	if sc.API.Enabled {
		statsConfig.Enabled = true
	}

	ck, err := sc.Checker.Checker(logger, statsConfig.Collector())
	if err != nil {
		return nil, fmt.Errorf("failed to create checker: %w", err)
	}

	services := make([]domaincheck.Service, 0, 2)

	if sc.API.Enabled {
		apiServer, err := sc.API.NewServer(logger, ck)
		if err != nil {
			ck.Close()
			return nil, fmt.Errorf("failed to create API server: %w", err)
		}
		services = append(services, apiServer)
	}

	if sc.DNS.Enabled {
		dnsServer, err := sc.DNS.Server(logger, ck)
		if err != nil {
			ck.Close()
			return nil, fmt.Errorf("failed to create DNS filter: %w", err)
		}
		services = append(services, dnsServer)
	}

	return &Manager{services, ck, logger}, nil
}

// Manager manages the services.
type Manager struct {
	services []domaincheck.Service
	checker  *checker.Checker
	logger   *zap.Logger
}

// Checker returns the checker shared by the services.
func (m *Manager) Checker() *checker.Checker {
	return m.checker
}

// Start starts all configured services.
func (m *Manager) Start(ctx context.Context) error {
	for _, s := range m.services {
		if err := s.Start(ctx); err != nil {
			kv := s.ZapField()
			return fmt.Errorf("failed to start %s=%q: %w", kv.Key, kv.String, err)
		}
	}
	return nil
}

// Stop stops all running services.
func (m *Manager) Stop() {
	for _, s := range m.services {
		kv := s.ZapField()
		if err := s.Stop(); err != nil {
			m.logger.Warn("Failed to stop service", kv, zap.Error(err))
			continue
		}
		m.logger.Info("Stopped service", kv)
	}
}

// Close closes the manager.
func (m *Manager) Close() {
	if err := m.checker.Close(); err != nil {
		m.logger.Warn("Failed to close checker", zap.Error(err))
	}
}
