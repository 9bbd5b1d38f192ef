package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/missatech/breach-analytics/domain/entity"
)

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults disabled", mutate: func(c *Config) {}, wantErr: false},
		{
			name: "enabled defaults",
			mutate: func(c *Config) {
				c.Enabled = true
			},
			wantErr: false,
		},
		{
			name: "enabled without address",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Address = ""
			},
			wantErr: true,
		},
		{
			name: "enabled without service name",
			mutate: func(c *Config) {
				c.Enabled = true
				c.ServiceName = ""
			},
			wantErr: true,
		},
		{
			name: "zero check interval",
			mutate: func(c *Config) {
				c.Enabled = true
				c.CheckInterval = 0
			},
			wantErr: true,
		},
		{
			name: "disabled config skips field checks",
			mutate: func(c *Config) {
				c.Address = ""
				c.ServiceName = ""
			},
			wantErr: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantErr {
				var verr *entity.ValidationError
				require.ErrorAs(t, err, &verr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewRegistrar_DerivesServiceID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	r, err := NewRegistrar(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "breach-analytics-localhost", r.ServiceID())
}

func TestNewRegistrar_KeepsExplicitServiceID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.ServiceID = "breach-analytics-2"

	r, err := NewRegistrar(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "breach-analytics-2", r.ServiceID())
}

func TestNewRegistrar_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Address = ""

	_, err := NewRegistrar(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
}
