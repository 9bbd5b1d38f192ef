// Package discovery registers the engine with Consul so downstream
// consumers can resolve it by service name instead of a pinned address.
package discovery

import (
	"fmt"
	"time"

	capi "github.com/hashicorp/consul/api"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
)

// Config controls Consul registration. AdvertiseHost is the address the
// agent's health checks dial, since the HTTP listener may bind a wildcard.
type Config struct {
	Enabled         bool          `mapstructure:"enabled"`
	Address         string        `mapstructure:"address"`
	ServiceName     string        `mapstructure:"service_name"`
	ServiceID       string        `mapstructure:"service_id"`
	Tags            []string      `mapstructure:"tags"`
	AdvertiseHost   string        `mapstructure:"advertise_host"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	CheckTimeout    time.Duration `mapstructure:"check_timeout"`
	DeregisterAfter time.Duration `mapstructure:"deregister_after"`
}

// DefaultConfig returns registration settings for a local agent, disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		Address:         "localhost:8500",
		ServiceName:     "breach-analytics",
		Tags:            []string{"analytics", "api"},
		AdvertiseHost:   "localhost",
		CheckInterval:   15 * time.Second,
		CheckTimeout:    3 * time.Second,
		DeregisterAfter: time.Minute,
	}
}

// Validate checks the registration settings. A disabled config is always
// valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Address == "" {
		return entity.NewValidationError("consul.address", "required when consul is enabled")
	}
	if c.ServiceName == "" {
		return entity.NewValidationError("consul.service_name", "required when consul is enabled")
	}
	if c.AdvertiseHost == "" {
		return entity.NewValidationError("consul.advertise_host", "required when consul is enabled")
	}
	if c.CheckInterval <= 0 || c.CheckTimeout <= 0 {
		return entity.NewValidationError("consul.check_interval", "check timings must be positive")
	}
	return nil
}

// Registrar registers one service instance and removes it on shutdown.
type Registrar struct {
	client *capi.Client
	cfg    Config
	id     string
	logger *zap.Logger
}

// NewRegistrar builds a Consul client for the configured agent. The
// client does not dial until Register is called.
func NewRegistrar(cfg Config, logger *zap.Logger) (*Registrar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := capi.DefaultConfig()
	clientCfg.Address = cfg.Address
	client, err := capi.NewClient(clientCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build consul client")
	}

	id := cfg.ServiceID
	if id == "" {
		id = fmt.Sprintf("%s-%s", cfg.ServiceName, cfg.AdvertiseHost)
	}
	return &Registrar{
		client: client,
		cfg:    cfg,
		id:     id,
		logger: logger.Named("discovery"),
	}, nil
}

// ServiceID returns the instance identity used for registration.
func (r *Registrar) ServiceID() string { return r.id }

// Register announces the instance with an HTTP health check against the
// engine's liveness probe. Instances that stay critical past the
// deregister window are removed by the agent.
func (r *Registrar) Register(httpPort int) error {
	registration := &capi.AgentServiceRegistration{
		ID:      r.id,
		Name:    r.cfg.ServiceName,
		Tags:    r.cfg.Tags,
		Address: r.cfg.AdvertiseHost,
		Port:    httpPort,
		Check: &capi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/healthz", r.cfg.AdvertiseHost, httpPort),
			Interval:                       r.cfg.CheckInterval.String(),
			Timeout:                        r.cfg.CheckTimeout.String(),
			DeregisterCriticalServiceAfter: r.cfg.DeregisterAfter.String(),
		},
	}

	if err := r.client.Agent().ServiceRegister(registration); err != nil {
		return errors.Wrapf(err, "failed to register %s with consul", r.id)
	}
	r.logger.Info("registered with consul",
		zap.String("service", r.cfg.ServiceName),
		zap.String("service_id", r.id),
		zap.Int("port", httpPort))
	return nil
}

// Deregister removes the instance from the catalog.
func (r *Registrar) Deregister() error {
	if err := r.client.Agent().ServiceDeregister(r.id); err != nil {
		return errors.Wrapf(err, "failed to deregister %s from consul", r.id)
	}
	r.logger.Info("deregistered from consul", zap.String("service_id", r.id))
	return nil
}
