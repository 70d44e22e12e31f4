package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofport/gateway/config"
)

func TestConfig_ApplyEnv(t *testing.T) {
	tests := []struct {
		desc string
		env  map[string]string
		want func(*testing.T, config.Config)
	}{
		{
			desc: "port and payment mode overridden",
			env: map[string]string{
				"PORT":         "9090",
				"PAYMENT_MODE": "testnet",
			},
			want: func(t *testing.T, c config.Config) {
				assert.Equal(t, 9090, c.Port)
				assert.Equal(t, config.PaymentTestnet, c.PaymentMode)
				assert.True(t, c.PaymentEnabled())
			},
		},
		{
			desc: "unset vars leave defaults untouched",
			env:  map[string]string{},
			want: func(t *testing.T, c config.Config) {
				assert.Equal(t, 8080, c.Port)
				assert.Equal(t, config.PaymentDisabled, c.PaymentMode)
				assert.False(t, c.PaymentEnabled())
			},
		},
		{
			desc: "cors origins split on comma",
			env: map[string]string{
				"A2A_CORS_ORIGINS": "https://a.example,https://b.example",
			},
			want: func(t *testing.T, c config.Config) {
				require.Len(t, c.CORSOrigins, 2)
				assert.Equal(t, "https://a.example", c.CORSOrigins[0])
				assert.Equal(t, "https://b.example", c.CORSOrigins[1])
			},
		},
		{
			desc: "malformed int env var is ignored",
			env: map[string]string{
				"SIGNING_TTL_SECONDS": "not-a-number",
			},
			want: func(t *testing.T, c config.Config) {
				assert.Equal(t, 300, c.SigningTTLSeconds)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			c := config.Default()
			c.ApplyEnv()
			tt.want(t, c)
		})
	}
}
