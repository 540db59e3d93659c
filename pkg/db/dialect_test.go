package db

import (
	"testing"

	"github.com/smallbiznis/payflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigMapsApplicationConfig(t *testing.T) {
	cfg := NewConfig(config.Config{
		DBType:            "postgres",
		DBHost:            "db.internal",
		DBPort:            "5433",
		DBName:            "payflow",
		DBUser:            "svc",
		DBPassword:        "secret",
		DBSSLMode:         "require",
		DBMaxIdleConn:     4,
		DBMaxOpenConn:     8,
		DBConnMaxLifetime: 1800,
	})

	assert.Equal(t, "postgres", cfg.Type)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, "5433", cfg.Port)
	assert.Equal(t, "payflow", cfg.Name)
	assert.Equal(t, "svc", cfg.User)
	assert.Equal(t, "require", cfg.SSLMode)
	assert.Equal(t, 4, cfg.MaxIdleConn)
	assert.Equal(t, 8, cfg.MaxOpenConn)
	assert.Equal(t, 1800, cfg.ConnMaxLifetime)
}

func TestDialectSelection(t *testing.T) {
	pg, err := Dialect(Config{Type: "postgres"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", pg.Name())

	my, err := Dialect(Config{Type: "mysql", Host: "localhost", Port: "3306", Name: "payflow"})
	require.NoError(t, err)
	assert.Equal(t, "mysql", my.Name())

	_, err = Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}
