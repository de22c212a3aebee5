package cmd

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/ginjaninja78/accounting-export-converter/internal/config"
	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanConversions(t *testing.T) {
	reg, err := doctype.Load()
	require.NoError(t, err)
	coa, err := reg.Lookup("coa")
	require.NoError(t, err)
	dual, err := reg.Lookup("authorised-invoice")
	require.NoError(t, err)

	reset := func(k, v string) {
		keyFile, valueFile = k, v
	}
	t.Cleanup(func() { reset("", "") })

	reset("", "")
	work, err := planConversions(coa, []string{"in/a.csv", "in/b.xlsx"})
	require.NoError(t, err)
	require.Len(t, work, 2)
	assert.Equal(t, "a.csv", work[0].Name)
	assert.Equal(t, []string{"in/b.xlsx"}, work[1].Paths)

	_, err = planConversions(coa, nil)
	assert.Error(t, err)

	reset("keys.csv", "lines.csv")
	work, err = planConversions(dual, nil)
	require.NoError(t, err)
	require.Len(t, work, 1)
	assert.Equal(t, []string{"keys.csv", "lines.csv"}, work[0].Paths)

	_, err = planConversions(coa, nil)
	assert.Error(t, err, "key/value files on a single-file type")

	_, err = planConversions(dual, []string{"extra.csv"})
	assert.Error(t, err)

	reset("keys.csv", "")
	_, err = planConversions(dual, nil)
	assert.Error(t, err)
}

func TestWriteVersion(t *testing.T) {
	reg, err := doctype.Load()
	require.NoError(t, err)

	var buf bytes.Buffer
	writeVersion(&buf, reg)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "converter "+Version+" (built "+BuildDate))
	assert.Contains(t, lines[0], runtime.GOOS+"/"+runtime.GOARCH)
	assert.Contains(t, lines[1], fmt.Sprintf("document types: %d embedded", len(reg.All())))
}

func TestLoadRegistryRejectsMissingFile(t *testing.T) {
	cfg := config.Default()
	cfg.DocumentTypesFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := loadRegistry(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	cfg.DocumentTypesFile = ""
	reg, err := loadRegistry(cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, reg.All())
}
