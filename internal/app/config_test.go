package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	require.Equal(t, "keyline", cfg.Issuer)
	require.Equal(t, "HS256", cfg.Algorithm)
	require.Equal(t, 3, cfg.KeyHistory)
	require.Empty(t, cfg.DatabaseFile)
	require.True(t, cfg.RefreshRotation)
	require.True(t, cfg.RefreshRevokeReplay)
	require.Equal(t, 10, cfg.RefreshMaxPerUser)
	require.Equal(t, time.Hour, cfg.HousekeepingInterval)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("KEYLINE_ISSUER", "issuer-a")
	t.Setenv("KEYLINE_AUDIENCE", "svc-a, svc-b")
	t.Setenv("KEYLINE_ALGORITHM", "HS512")
	t.Setenv("KEYLINE_REFRESH_ROTATION", "false")
	t.Setenv("KEYLINE_REFRESH_MAX_LIFETIME", "72h")
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	require.Equal(t, "issuer-a", cfg.Issuer)
	require.Equal(t, []string{"svc-a", "svc-b"}, cfg.Audience)
	require.Equal(t, "HS512", cfg.Algorithm)
	require.False(t, cfg.RefreshRotation)
	require.Equal(t, 72*time.Hour, cfg.RefreshMaxLifetime)
	require.Equal(t, 9090, cfg.Port)
}

func TestLoadConfig_FlagsWinOverEnv(t *testing.T) {
	t.Setenv("KEYLINE_ISSUER", "issuer-env")
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfig([]string{"--issuer", "issuer-flag", "--port", "7070"})
	require.NoError(t, err)

	require.Equal(t, "issuer-flag", cfg.Issuer)
	require.Equal(t, 7070, cfg.Port)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad algorithm", env: map[string]string{"KEYLINE_ALGORITHM": "none"}},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "verbose"}},
		{name: "port out of range", env: map[string]string{"PORT": "70000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(nil)
			require.Error(t, err)
		})
	}
}
