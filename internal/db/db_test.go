package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFromSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{
		{int64(1), "a"},
		{int64(2), "b"},
	}
	mock.ExpectCopyFrom(pgx.Identifier{"geo", "admin_regions_staging"}, []string{"id", "name"}).
		WillReturnResult(2)

	n, err := CopyFromSchema(context.Background(), mock, "geo", "admin_regions_staging", []string{"id", "name"}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromSchemaEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// No rows, no COPY issued.
	n, err := CopyFromSchema(context.Background(), mock, "geo", "admin_regions_staging", []string{"id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromSchemaError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"geo", "admin_regions_staging"}, []string{"id"}).
		WillReturnError(assert.AnError)

	_, err = CopyFromSchema(context.Background(), mock, "geo", "admin_regions_staging", []string{"id"}, [][]any{{int64(1)}})
	assert.Error(t, err)
}
