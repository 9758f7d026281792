package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFromEmptyRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := CopyFrom(context.Background(), mock, "leads", []string{"id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{{"a", "1"}, {"b", "2"}}
	mock.ExpectCopyFrom(pgx.Identifier{"leads"}, []string{"id", "place_id"}).WillReturnResult(2)

	n, err := CopyFrom(context.Background(), mock, "leads", []string{"id", "place_id"}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsertValidation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ctx := context.Background()
	rows := [][]any{{"a"}}

	n, err := BulkUpsert(ctx, mock, UpsertConfig{Table: "leads"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = BulkUpsert(ctx, mock, UpsertConfig{Table: "leads", ConflictKeys: []string{"id"}}, rows)
	assert.Error(t, err)

	_, err = BulkUpsert(ctx, mock, UpsertConfig{Table: "leads", Columns: []string{"id"}}, rows)
	assert.Error(t, err)
}

func TestBulkUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := UpsertConfig{
		Table:        "leads",
		Columns:      []string{"campaign_id", "place_id", "stage"},
		ConflictKeys: []string{"campaign_id", "place_id"},
	}
	rows := [][]any{{"c1", "p1", "discovered"}}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_leads"}, cfg.Columns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "leads"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, cfg, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
