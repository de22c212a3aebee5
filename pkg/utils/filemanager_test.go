package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTempUploadCleanup(t *testing.T) {
	dir := t.TempDir()

	path, cleanup, err := WriteTempUpload(dir, "Invoices.XLSX", []byte("data"))
	require.NoError(t, err)
	assert.True(t, FileExists(path))
	assert.Equal(t, ".xlsx", filepath.Ext(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), uploadPrefix))

	cleanup()
	cleanup()
	assert.False(t, FileExists(path))
}

func TestCleanStaleUploads(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, uploadPrefix+"old.csv")
	fresh := filepath.Join(dir, uploadPrefix+"fresh.csv")
	other := filepath.Join(dir, "keep.csv")
	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	removed, err := CleanStaleUploads(dir, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, removed)
	assert.False(t, FileExists(old))
	assert.True(t, FileExists(fresh))
	assert.True(t, FileExists(other))

	n, err := CleanStaleUploads(filepath.Join(dir, "missing"), time.Hour)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestGenerateOutputFileName(t *testing.T) {
	now := time.Date(2024, 1, 15, 14, 30, 22, 0, time.UTC)
	params := map[string]string{
		"original": "COA Export",
		"source":   "myob",
		"dest":     "xero",
		"country":  "AU",
		"function": "coa",
	}

	got := GenerateOutputFileName("{original}_{source}-to-{dest}_{country}_{function}_{timestamp}.csv", params, now)
	assert.Equal(t, "coa-export_myob-to-xero_au_coa_20240115_143022.csv", got)

	assert.Equal(t, "20240115-x.csv", GenerateOutputFileName("{date}-{unknown}x", nil, now))
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Chart of Accounts": "chart-of-accounts",
		"Café.xlsx":         "cafe-xlsx",
		"  --  ":            "",
		"Q1/2024":           "q1-2024",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, Slugify(in))
		})
	}
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "invoices", BaseName("/tmp/x/invoices.csv"))
	assert.Equal(t, "book", BaseName("book"))
}
