package csvparser

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ginjaninja78/accounting-export-converter/internal/config"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

var utf8Settings = config.CSVSettings{Delimiter: ",", Encoding: "UTF-8"}

func TestParseReaderNormalisesHeadersAndValues(t *testing.T) {
	input := "\ufeff*ContactName , *InvoiceNumber,Total\n  Acme , INV-1 , 10.00\n"

	ds, err := ParseReader(strings.NewReader(input), utf8Settings)
	require.NoError(t, err)

	assert.Equal(t, []string{"ContactName", "InvoiceNumber", "Total"}, ds.Headers)
	require.Len(t, ds.Rows, 1)
	row := ds.Rows[0]
	assert.Equal(t, "Acme", row.Str("ContactName"))
	assert.Equal(t, "INV-1", row.Str("InvoiceNumber"))
	assert.Equal(t, "10.00", row.Str("Total"))
	assert.Equal(t, 2, row.Line)
}

func TestParseReaderVariableWidthRows(t *testing.T) {
	input := "A,B,C\n1,2\n1,2,3,4\n"

	ds, err := ParseReader(strings.NewReader(input), utf8Settings)
	require.NoError(t, err)
	require.Len(t, ds.Rows, 2)

	assert.Equal(t, []types.Field{"A", "B"}, ds.Rows[0].Keys())
	assert.Equal(t, []types.Field{"A", "B", "C"}, ds.Rows[1].Keys())
}

func TestParseReaderSkipsBlankRowsAndNamesEmptyHeaders(t *testing.T) {
	input := "A,,C\n,,\nx,y,z\n"

	ds, err := ParseReader(strings.NewReader(input), utf8Settings)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "Column_2", "C"}, ds.Headers)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "y", ds.Rows[0].Str("Column_2"))
	assert.Equal(t, 3, ds.Rows[0].Line)
}

func TestParseReaderEmptyDataset(t *testing.T) {
	for _, input := range []string{"", "A,B\n", "A,B\n , \n"} {
		_, err := ParseReader(strings.NewReader(input), utf8Settings)
		assert.ErrorIs(t, err, types.ErrEmptyDataset, "input %q", input)
	}
}

func TestParseReaderDuplicateHeaderLaterWins(t *testing.T) {
	ds, err := ParseReader(strings.NewReader("Name,Name\nfirst,second\n"), utf8Settings)
	require.NoError(t, err)
	assert.Equal(t, "second", ds.Rows[0].Str("Name"))
}

func TestParseReaderDelimiterAndEncoding(t *testing.T) {
	encoded, err := charmap.Windows1252.NewEncoder().String("Name;Note\nCafé;ok\n")
	require.NoError(t, err)

	settings := config.CSVSettings{Delimiter: "semicolon", Encoding: "Windows-1252"}
	ds, err := ParseReader(bytes.NewReader([]byte(encoded)), settings)
	require.NoError(t, err)

	assert.Equal(t, "Café", ds.Rows[0].Str("Name"))
}

func TestParseReaderSingleByteEncodingDropsUTF8BOM(t *testing.T) {
	encoded, err := charmap.ISO8859_1.NewEncoder().String("Code,Name\n200,Café\n")
	require.NoError(t, err)

	for _, enc := range []string{"ISO-8859-1", "Windows-1252"} {
		input := append([]byte("\xEF\xBB\xBF"), encoded...)
		ds, err := ParseReader(bytes.NewReader(input), config.CSVSettings{Delimiter: ",", Encoding: enc})
		require.NoError(t, err, enc)
		assert.Equal(t, []string{"Code", "Name"}, ds.Headers, enc)
		assert.Equal(t, "200", ds.Rows[0].Str("Code"), enc)
		assert.Equal(t, "Café", ds.Rows[0].Str("Name"), enc)
	}
}

func TestParseReaderUnsupportedEncoding(t *testing.T) {
	_, err := ParseReader(strings.NewReader("A\n1\n"), config.CSVSettings{Encoding: "EBCDIC"})
	assert.Error(t, err)
}

func TestParseFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coa.csv")
	require.NoError(t, os.WriteFile(path, []byte("Code,Name\n090,Bank\n"), 0644))

	ds, err := Parse(path, utf8Settings)
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
	assert.Equal(t, "090", ds.Rows[0].Str("Code"))
}
