package database

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/pkg/config"
)

func TestDSNEscapesCredentials(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "timetable",
		Password: "p@ss word/#1",
		Name:     "timetable",
		SSLMode:  "require",
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db.internal:5433", u.Host)
	assert.Equal(t, "/timetable", u.Path)
	password, _ := u.User.Password()
	assert.Equal(t, "p@ss word/#1", password)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
}

func TestDSNOmitsEmptySSLMode(t *testing.T) {
	u, err := url.Parse(DSN(config.DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", Name: "timetable"}))
	require.NoError(t, err)
	assert.False(t, u.Query().Has("sslmode"))
}
