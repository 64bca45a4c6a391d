package utils

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithPoolDBClosesHandle(t *testing.T) {
	// pgxpool.New does not dial until a connection is needed.
	pool, err := pgxpool.New(context.Background(), "postgres://u:p@127.0.0.1:1/db?connect_timeout=1")
	require.NoError(t, err)
	defer pool.Close()

	boom := errors.New("boom")
	for _, want := range []error{nil, boom} {
		var handle *sql.DB
		err := withPoolDB(pool, func(db *sql.DB) error {
			handle = db
			return want
		})
		assert.Equal(t, want, err)

		require.NotNil(t, handle)
		assert.EqualError(t, handle.Ping(), "sql: database is closed")
	}
}
