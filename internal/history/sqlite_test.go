package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAssignsIncreasingIndices(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		idx, err := s.Save(ctx, "job-1", Record{FileName: "coa.csv", Route: "au-myob-xero/single/coa", DocumentType: "coa", Rows: 2, CreatedAt: at})
		require.NoError(t, err)
		assert.Equal(t, i, idx)
	}
	idx, err := s.Save(ctx, "job-2", Record{FileName: "bill.csv"})
	require.NoError(t, err)
	assert.Equal(t, 0, idx, "indices are per job")

	recs, err := s.List(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, Record{
		Index: 1, JobID: "job-1", FileName: "coa.csv", Route: "au-myob-xero/single/coa",
		DocumentType: "coa", Rows: 2, CreatedAt: at,
	}, recs[1])
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.Save(ctx, "job", Record{FileName: "f.csv"})
		require.NoError(t, err)
	}

	require.NoError(t, s.Delete(ctx, "job", 0))
	assert.ErrorIs(t, s.Delete(ctx, "job", 0), ErrRecordNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "other", 1), ErrRecordNotFound)

	recs, err := s.List(ctx, "job")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1, recs[0].Index)

	idx, err := s.Save(ctx, "job", Record{FileName: "g.csv"})
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
}

func TestListUnknownJobIsEmpty(t *testing.T) {
	s := openTestStore(t)
	recs, err := s.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
