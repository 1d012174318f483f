package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

var (
	ErrMissingSecretKey      = errors.New("jwt secret key is required (SECRET_KEY)")
	ErrMissingAlgorithm      = errors.New("jwt signing algorithm is required (ALGORITHM)")
	ErrUnsupportedAlgorithm  = errors.New("jwt signing algorithm must be one of HS256, HS384, HS512")
	ErrInvalidTokenExpiry    = errors.New("access token expiry must be a positive number of minutes")
	ErrUnsupportedPasswordFn = errors.New("password algorithm must be bcrypt or argon2id")
)

// SupportedAlgorithms lists the symmetric signing algorithms accepted for access tokens.
var SupportedAlgorithms = []string{"HS256", "HS384", "HS512"}

type JWTConfig struct {
	SecretKey                string `mapstructure:"secretKey"`
	Algorithm                string `mapstructure:"algorithm"`
	AccessTokenExpireMinutes int    `mapstructure:"accessTokenExpireMinutes"`
	Issuer                   string `mapstructure:"issuer"`
}

// AccessTokenTTL returns the configured token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	return time.Duration(j.AccessTokenExpireMinutes) * time.Minute
}

type PasswordConfig struct {
	Algorithm  string `mapstructure:"algorithm"`
	BcryptCost int    `mapstructure:"bcryptCost"`
}

type AuthConfig struct {
	// EnforceActive makes Identify reject identities whose active flag is false.
	EnforceActive bool `mapstructure:"enforceActive"`
}

type Config struct {
	Mode     string `mapstructure:"mode"`
	Handlers struct {
		Prometheus struct {
			Port string `mapstructure:"port"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		Postgres struct {
			Host              string `mapstructure:"host"`
			Password          string `mapstructure:"password"`
			Port              string `mapstructure:"port"`
			Username          string `mapstructure:"username"`
			DB                string `mapstructure:"db"`
			SSLMODE           string `mapstructure:"SSLMODE"`
			MAXCONWAITINGTIME int    `mapstructure:"MAXCONWAITINGTIME"`
		} `mapstructure:"postgres"`
	} `mapstructure:"repositories"`
	Server struct {
		HTTPPort string        `mapstructure:"HTTPPort"`
		Timeout  time.Duration `mapstructure:"HTTPTimeout"`
	} `mapstructure:"server"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Password PasswordConfig `mapstructure:"password"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"mode":                           "APP_ENV",
	"server.HTTPPort":                "HTTP_PORT",
	"handlers.prometheus.port":       "PROMETHEUS_PORT",
	"repositories.postgres.host":     "POSTGRES_HOST",
	"repositories.postgres.port":     "POSTGRES_PORT",
	"repositories.postgres.username": "POSTGRES_USER",
	"repositories.postgres.password": "POSTGRES_PASSWORD",
	"repositories.postgres.db":       "POSTGRES_DB",
	"repositories.postgres.SSLMODE":  "POSTGRES_SSLMODE",
	"jwt.secretKey":                  "SECRET_KEY",
	"jwt.algorithm":                  "ALGORITHM",
	"jwt.accessTokenExpireMinutes":   "ACCESS_TOKEN_EXPIRE_MINUTES",
	"jwt.issuer":                     "JWT_ISSUER",
	"password.algorithm":             "PASSWORD_ALGORITHM",
	"password.bcryptCost":            "BCRYPT_COST",
	"auth.enforceActive":             "AUTH_ENFORCE_ACTIVE",
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	// Add file-based config paths
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %w", err)
		}
	}

	for key, env := range envBindings {
		if err = v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}
	v.SetDefault("jwt.accessTokenExpireMinutes", 30)

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err = config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate rejects configurations that would start the service with an insecure
// or unusable token setup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.SecretKey) == "" {
		return ErrMissingSecretKey
	}
	alg := strings.TrimSpace(c.JWT.Algorithm)
	if alg == "" {
		return ErrMissingAlgorithm
	}
	supported := false
	for _, a := range SupportedAlgorithms {
		if strings.EqualFold(a, alg) {
			c.JWT.Algorithm = a
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("%w: got %q", ErrUnsupportedAlgorithm, alg)
	}
	if c.JWT.AccessTokenExpireMinutes <= 0 {
		return ErrInvalidTokenExpiry
	}

	switch strings.ToLower(c.Password.Algorithm) {
	case "", "bcrypt":
		c.Password.Algorithm = "bcrypt"
	case "argon2id":
		c.Password.Algorithm = "argon2id"
	default:
		return fmt.Errorf("%w: got %q", ErrUnsupportedPasswordFn, c.Password.Algorithm)
	}
	return nil
}
