// =============================================================================
// Accounting Export Converter - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the converter, including:
//   - Scoped temporary upload artifacts
//   - Cleanup of upload artifacts orphaned by a crash
//   - Download file naming from job metadata
//   - Directory management
//
// UPLOAD ARTIFACT STRATEGY:
//   - Uploaded bytes are written to work_dir with a random name
//   - The caller defers the returned cleanup, so the artifact is removed on
//     every exit path
//   - `converter serve` sweeps work_dir on start for artifacts left behind
//     by a killed process
//
// =============================================================================

package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// uploadPrefix marks files this package created in the work directory.
const uploadPrefix = "upload-"

var (
	nonSlugChars       = regexp.MustCompile(`[^a-z0-9]+`)
	unknownPlaceholder = regexp.MustCompile(`\{[^{}]*\}`)
)

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates all given directories if they don't exist.
func EnsureDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// =============================================================================
// TEMPORARY UPLOADS
// =============================================================================

// WriteTempUpload stores uploaded bytes in workDir.
//
// PARAMETERS:
//   - workDir: Directory for the artifact ("" uses the OS temp dir).
//   - name: The uploaded file name; only its extension is kept.
//   - data: The uploaded bytes.
//
// RETURNS:
//   - The artifact path.
//   - A cleanup function that removes the artifact. It is safe to call more
//     than once and is non-nil even on error.
//   - An error if the artifact cannot be written.
func WriteTempUpload(workDir, name string, data []byte) (string, func(), error) {
	noop := func() {}

	if workDir != "" {
		if err := EnsureDirectories(workDir); err != nil {
			return "", noop, err
		}
	}

	pattern := uploadPrefix + "*" + strings.ToLower(filepath.Ext(name))
	file, err := os.CreateTemp(workDir, pattern)
	if err != nil {
		return "", noop, fmt.Errorf("failed to create upload artifact: %w", err)
	}
	path := file.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := file.Write(data); err != nil {
		file.Close()
		cleanup()
		return "", noop, fmt.Errorf("failed to write upload artifact: %w", err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("failed to close upload artifact: %w", err)
	}

	return path, cleanup, nil
}

// CleanStaleUploads removes upload artifacts older than maxAge from workDir.
//
// RETURNS:
//   - The number of files removed.
//   - An error if the directory cannot be walked.
func CleanStaleUploads(workDir string, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	entries, err := os.ReadDir(workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read work directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), uploadPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(workDir, entry.Name())); err != nil {
				return removed, fmt.Errorf("failed to clean uploads: %w", err)
			}
			removed++
		}
	}

	return removed, nil
}

// =============================================================================
// FILE NAMING UTILITIES
// =============================================================================

// GenerateOutputFileName generates a download file name from a format string.
//
// PARAMETERS:
//   - format: The format string for the file name.
//             Built-in placeholders:
//               {uuid}      - A random UUID
//               {timestamp} - now (YYYYMMDD_HHMMSS)
//               {date}      - now (YYYYMMDD)
//               {time}      - now (HHMMSS)
//   - params: Further placeholder values ({original}, {source}, {function}...).
//             Values are slugged so they are safe in a file name.
//   - now: The conversion time.
//
// RETURNS:
//   - The generated file name, always ending in ".csv".
//
// EXAMPLE:
//   format: "{original}_{source}-to-{dest}_{country}_{function}_{timestamp}.csv"
//   params: {"original": "COA Export", "source": "myob", "dest": "xero",
//            "country": "au", "function": "coa"}
//   output: "coa-export_myob-to-xero_au_coa_20240115_143022.csv"
func GenerateOutputFileName(format string, params map[string]string, now time.Time) string {
	replacements := map[string]string{
		"{uuid}":      uuid.New().String(),
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
		"{time}":      now.Format("150405"),
	}

	for key, value := range params {
		replacements["{"+key+"}"] = Slugify(value)
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	// Unknown placeholders are dropped rather than leaking braces.
	result = unknownPlaceholder.ReplaceAllString(result, "")
	result = strings.ReplaceAll(result, string(filepath.Separator), "-")

	if !strings.HasSuffix(strings.ToLower(result), ".csv") {
		result += ".csv"
	}

	return result
}

// Slugify lower-cases s, strips accents and joins alphanumeric runs with "-".
// Examples: "Chart of Accounts" -> "chart-of-accounts", "Café.xlsx" -> "cafe-xlsx"
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	normalized, _, err := transform.String(t, s)
	if err != nil {
		normalized = s
	}

	slug := nonSlugChars.ReplaceAllString(strings.ToLower(normalized), "-")
	return strings.Trim(slug, "-")
}

// BaseName returns a file name without directory or extension.
func BaseName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
