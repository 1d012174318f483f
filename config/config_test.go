package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	var c Config
	c.JWT = JWTConfig{SecretKey: "s3cret", Algorithm: "HS256", AccessTokenExpireMinutes: 30}
	return c
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing secret", mutate: func(c *Config) { c.JWT.SecretKey = "" }, wantErr: ErrMissingSecretKey},
		{name: "blank secret", mutate: func(c *Config) { c.JWT.SecretKey = "   " }, wantErr: ErrMissingSecretKey},
		{name: "missing algorithm", mutate: func(c *Config) { c.JWT.Algorithm = "" }, wantErr: ErrMissingAlgorithm},
		{name: "asymmetric algorithm", mutate: func(c *Config) { c.JWT.Algorithm = "RS256" }, wantErr: ErrUnsupportedAlgorithm},
		{name: "none algorithm", mutate: func(c *Config) { c.JWT.Algorithm = "none" }, wantErr: ErrUnsupportedAlgorithm},
		{name: "zero expiry", mutate: func(c *Config) { c.JWT.AccessTokenExpireMinutes = 0 }, wantErr: ErrInvalidTokenExpiry},
		{name: "unknown password algorithm", mutate: func(c *Config) { c.Password.Algorithm = "md5" }, wantErr: ErrUnsupportedPasswordFn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_Normalises(t *testing.T) {
	c := validConfig()
	c.JWT.Algorithm = "hs512"
	c.Password.Algorithm = "Argon2id"
	require.NoError(t, c.Validate())
	assert.Equal(t, "HS512", c.JWT.Algorithm)
	assert.Equal(t, "argon2id", c.Password.Algorithm)

	c = validConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, "bcrypt", c.Password.Algorithm)
}

func TestAccessTokenTTL(t *testing.T) {
	assert.Equal(t, 30*time.Minute, JWTConfig{AccessTokenExpireMinutes: 30}.AccessTokenTTL())
}

func TestInitConfig_FailsWithoutSecret(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	t.Setenv("ALGORITHM", "HS256")

	_, err := InitConfig()
	assert.ErrorIs(t, err, ErrMissingSecretKey)
}

func TestInitConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SECRET_KEY", "from-env")
	t.Setenv("ALGORITHM", "HS384")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "15")
	t.Setenv("AUTH_ENFORCE_ACTIVE", "true")
	t.Setenv("POSTGRES_HOST", "db.internal")

	cfg, err := InitConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWT.SecretKey)
	assert.Equal(t, "HS384", cfg.JWT.Algorithm)
	assert.Equal(t, 15, cfg.JWT.AccessTokenExpireMinutes)
	assert.True(t, cfg.Auth.EnforceActive)
	assert.Equal(t, "db.internal", cfg.Repositories.Postgres.Host)
	assert.Equal(t, "bcrypt", cfg.Password.Algorithm)
	assert.Equal(t, 60*time.Second, cfg.Server.Timeout)
}

func TestInitConfig_DefaultExpiry(t *testing.T) {
	t.Setenv("SECRET_KEY", "from-env")
	t.Setenv("ALGORITHM", "HS256")

	cfg, err := InitConfig()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.JWT.AccessTokenExpireMinutes)
}
