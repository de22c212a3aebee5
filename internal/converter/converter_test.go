package converter

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ginjaninja78/accounting-export-converter/internal/config"
	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/ginjaninja78/accounting-export-converter/internal/ingest"
	"github.com/ginjaninja78/accounting-export-converter/internal/rules"
	"github.com/ginjaninja78/accounting-export-converter/internal/session"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const coaCSV = "\ufeffAccount Number*,Account Name*,Account Type,Tax Code\n" +
	"1-1110,Cheque Account,Bank,N-T\n" +
	"2-1310,GST,Other Current Liability,N-T\n" +
	"4-1000,Sales,Income,GST\n"

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.WorkDir = filepath.Join(t.TempDir(), "work")
	cfg.OutputDir = t.TempDir()

	reg, err := doctype.Load()
	require.NoError(t, err)

	svc := NewService(cfg, reg, session.NewStore(time.Hour, 100), log.New(io.Discard))
	svc.now = func() time.Time { return time.Date(2024, 7, 1, 14, 30, 22, 0, time.UTC) }
	return svc
}

func mustRoute(t *testing.T, slug string) doctype.Route {
	t.Helper()
	r, err := doctype.ParseRoute("au-myob-xero", "single", slug)
	require.NoError(t, err)
	return r
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return records
}

func column(records [][]string, name string) []string {
	idx := -1
	for i, h := range records[0] {
		if h == name {
			idx = i
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		out = append(out, rec[idx])
	}
	return out
}

func TestChartOfAccountsEndToEnd(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	route := mustRoute(t, "coa")

	up, err := svc.Upload(ctx, UploadRequest{
		Route: route,
		Files: []ingest.Upload{{Name: "COA Export.csv", Data: []byte(coaCSV)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, up.Rows)
	assert.NotEmpty(t, up.JobID)

	res, err := svc.Convert(ctx, ConvertRequest{JobID: up.JobID, Route: route})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Stats.RowsRead)
	assert.Equal(t, 2, res.Stats.RowsWritten)
	assert.Equal(t, map[string]int{"exclude": 1}, res.Stats.DroppedBy)
	assert.Equal(t, "coa-export_myob-to-xero_au_coa_20240701_143022.csv", res.FileName)
	assert.Empty(t, res.OutputFile)

	out, err := svc.Download(ctx, up.JobID, route)
	require.NoError(t, err)
	assert.Equal(t, res.FileName, out.FileName)

	records := readCSV(t, out.Data)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Code", "Name", "Type", "Tax Code", "Description", "Dashboard", "Expense Claims", "Enable Payments"}, records[0])
	assert.Equal(t, []string{"Cheque Account", "Sales"}, column(records, "Name"))

	accountTypes := column(records, "Type")
	dashboard := column(records, "Dashboard")
	for i := range accountTypes {
		want := "No"
		if accountTypes[i] == "Bank" || accountTypes[i] == "Credit card" {
			want = "Yes"
		}
		assert.Equal(t, want, dashboard[i], "row %d type %s", i, accountTypes[i])
	}
	assert.Equal(t, []string{"Yes", "No"}, dashboard)
	assert.Equal(t, []string{doctype.TaxBASExcluded, doctype.TaxBASExcluded}, column(records, "Tax Code"))

	entries, err := os.ReadDir(svc.cfg.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "upload artifacts are removed")
}

func TestSecondUploadReplacesFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	route := mustRoute(t, "coa")

	first, err := svc.Upload(ctx, UploadRequest{Route: route, Files: []ingest.Upload{{Name: "a.csv", Data: []byte(coaCSV)}}})
	require.NoError(t, err)
	_, err = svc.Convert(ctx, ConvertRequest{JobID: first.JobID, Route: route})
	require.NoError(t, err)

	second, err := svc.Upload(ctx, UploadRequest{
		JobID: first.JobID,
		Route: route,
		Files: []ingest.Upload{{Name: "b.csv", Data: []byte("Code,Name,Type\n9-9999,Suspense,Equity\n")}},
	})
	require.NoError(t, err)
	assert.Equal(t, first.JobID, second.JobID)

	_, err = svc.Download(ctx, first.JobID, route)
	assert.True(t, IsOutputNotFound(err), "previous output is discarded: %v", err)

	res, err := svc.Convert(ctx, ConvertRequest{JobID: first.JobID, Route: route})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.RowsWritten)
}

func TestDualFileWorkbook(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	route := mustRoute(t, "authorised-invoice")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Invoices"))
	_, err := f.NewSheet("Authorised Invoices")
	require.NoError(t, err)
	for i, row := range [][]interface{}{{"Invoice Number"}, {"1001"}, {"1001"}, {"1002"}} {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Invoices", cell, &row))
	}
	for i, row := range [][]interface{}{
		{"Invoice ID", "Invoice Number", "Co./Last Name", "Date", "Tax Code"},
		{"55-AA", "1001", "Acme", "2024-07-01", "OUTPUT"},
		{"56-AB", "1002", "Bolt", "2024-07-02", ""},
	} {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Authorised Invoices", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	up, err := svc.Upload(ctx, UploadRequest{Route: route, Files: []ingest.Upload{{Name: "invoices.xlsx", Data: buf.Bytes()}}})
	require.NoError(t, err)
	assert.Equal(t, 3, up.KeyRows)
	assert.Equal(t, 2, up.Rows)

	res, err := svc.Convert(ctx, ConvertRequest{JobID: up.JobID, Route: route})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.IdentifiersRewritten)

	out, err := svc.Download(ctx, up.JobID, route)
	require.NoError(t, err)
	records := readCSV(t, out.Data)
	assert.Equal(t, []string{"55_1001", "1002"}, column(records, "InvoiceNumber"))
	assert.Equal(t, []string{"01/07/2024", "02/07/2024"}, column(records, "InvoiceDate"))
	assert.Equal(t, []string{doctype.TaxGSTOnIncome, doctype.TaxBASExcluded}, column(records, "TaxType"))
	assert.Equal(t, []string{".", "."}, column(records, "Description"))
	assert.Equal(t, []string{"AUTHORISED", "AUTHORISED"}, column(records, "Status"))
}

func TestDualFileMissingSheet(t *testing.T) {
	svc := newTestService(t)

	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Invoice Number"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "1001"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), UploadRequest{
		Route: mustRoute(t, "authorised-invoice"),
		Files: []ingest.Upload{{Name: "invoices.xlsx", Data: buf.Bytes()}},
	})
	assert.True(t, IsInputError(err))
	assert.ErrorIs(t, err, ingest.ErrSheetNotFound)
}

func TestErrorTaxonomy(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	coa := mustRoute(t, "coa")

	_, err := svc.Upload(ctx, UploadRequest{Route: coa})
	assert.True(t, IsInputError(err))
	assert.ErrorIs(t, err, ingest.ErrNoFile)

	_, err = svc.Upload(ctx, UploadRequest{Route: coa, Files: []ingest.Upload{{Name: "empty.csv", Data: []byte("Code,Name\n")}}})
	assert.True(t, IsInputError(err))
	assert.ErrorIs(t, err, types.ErrEmptyDataset)

	unknown := coa
	unknown.Slug = "payroll"
	_, err = svc.Upload(ctx, UploadRequest{Route: unknown, Files: []ingest.Upload{{Name: "a.csv", Data: []byte(coaCSV)}}})
	assert.ErrorIs(t, err, doctype.ErrUnknownDocumentType)

	_, err = svc.Convert(ctx, ConvertRequest{JobID: "nope", Route: coa})
	assert.True(t, IsConversionError(err))

	_, err = svc.Download(ctx, "nope", coa)
	assert.True(t, IsOutputNotFound(err))

	up, err := svc.Upload(ctx, UploadRequest{Route: coa, Files: []ingest.Upload{{Name: "a.csv", Data: []byte(coaCSV)}}})
	require.NoError(t, err)
	_, err = svc.Download(ctx, up.JobID, coa)
	assert.True(t, IsOutputNotFound(err))
	assert.ErrorIs(t, err, session.ErrNoOutput)

	bill := mustRoute(t, "bill")
	up, err = svc.Upload(ctx, UploadRequest{Route: bill, Files: []ingest.Upload{{Name: "t.csv", Data: []byte("Type,Num\nPayment,1\n")}}})
	require.NoError(t, err)
	_, err = svc.Convert(ctx, ConvertRequest{JobID: up.JobID, Route: bill})
	assert.True(t, IsConversionError(err))
	assert.ErrorIs(t, err, rules.ErrNoRowsSurvived)

	_, err = svc.Convert(ctx, ConvertRequest{JobID: up.JobID, Route: coa})
	assert.True(t, IsConversionError(err))
	assert.ErrorIs(t, err, session.ErrRouteMismatch)
}

func TestWriteOutputFiles(t *testing.T) {
	svc := newTestService(t)
	svc.cfg.WriteOutputFiles = true
	ctx := context.Background()
	route := mustRoute(t, "coa")

	up, err := svc.Upload(ctx, UploadRequest{Route: route, Files: []ingest.Upload{{Name: "a.csv", Data: []byte(coaCSV)}}})
	require.NoError(t, err)
	res, err := svc.Convert(ctx, ConvertRequest{JobID: up.JobID, Route: route})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(svc.cfg.OutputDir, up.JobID+".csv"), res.OutputFile)
	data, err := os.ReadFile(res.OutputFile)
	require.NoError(t, err)
	out, err := svc.Download(ctx, up.JobID, route)
	require.NoError(t, err)
	assert.Equal(t, out.Data, data)
}

func TestWriteValidationReport(t *testing.T) {
	svc := newTestService(t)
	svc.cfg.WriteOutputFiles = true
	ctx := context.Background()
	route := mustRoute(t, "manual-journal")

	journal := "Memo,Date,Account Number,Tax Code,Amount\n" +
		"Rent,next week,6-1000,N-T,100.00\n" +
		",,1-1110,N-T,-100.00\n"
	up, err := svc.Upload(ctx, UploadRequest{Route: route, Files: []ingest.Upload{{Name: "journal.csv", Data: []byte(journal)}}})
	require.NoError(t, err)
	res, err := svc.Convert(ctx, ConvertRequest{JobID: up.JobID, Route: route})
	require.NoError(t, err)
	require.Positive(t, res.Stats.ValidationWarnings)

	assert.Equal(t, filepath.Join(svc.cfg.OutputDir, up.JobID+".validation.log"), res.ReportFile)
	report, err := os.ReadFile(res.ReportFile)
	require.NoError(t, err)
	assert.Contains(t, string(report), "# Validation report ")
	assert.Contains(t, string(report), strconv.Itoa(res.Stats.ValidationWarnings)+" finding(s)")
	assert.Contains(t, string(report), "next week")
}

func TestCleanOutputWritesNoValidationReport(t *testing.T) {
	svc := newTestService(t)
	svc.cfg.WriteOutputFiles = true
	ctx := context.Background()
	route := mustRoute(t, "coa")

	up, err := svc.Upload(ctx, UploadRequest{Route: route, Files: []ingest.Upload{{Name: "a.csv", Data: []byte(coaCSV)}}})
	require.NoError(t, err)
	res, err := svc.Convert(ctx, ConvertRequest{JobID: up.JobID, Route: route})
	require.NoError(t, err)

	assert.Empty(t, res.ReportFile)
	assert.NoFileExists(t, filepath.Join(svc.cfg.OutputDir, up.JobID+".validation.log"))
}

func TestClassifyAndRecover(t *testing.T) {
	assert.Equal(t, KindUnexpected, KindOf(errors.New("boom")))
	assert.False(t, IsInputError(nil))

	wrapped := classify(OpUpload, session.ErrJobNotFound)
	assert.True(t, IsInputError(wrapped))
	assert.Same(t, wrapped, classify(OpConvert, wrapped), "already classified errors pass through")
	assert.True(t, IsConversionError(classify(OpConvert, session.ErrInputReplaced)))

	run := func() (err error) {
		defer recoverPanic(OpConvert, log.New(io.Discard), &err)
		var rows []*types.Row
		_ = rows[1]
		return nil
	}
	err := run()
	assert.True(t, IsUnexpected(err))
	assert.Contains(t, err.Error(), "convert failed: internal error")
}
