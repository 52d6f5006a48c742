// Package fetcher reads uploaded claimant files (CSV and XLSX) into
// header-keyed records and downloads remote files over HTTP.
package fetcher

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Format is an upload file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat picks the parser for a file name. Anything that is not a
// spreadsheet is read as delimited text.
func DetectFormat(name string) Format {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// Parse reads a whole uploaded file into records keyed by header text.
func Parse(ctx context.Context, name string, data []byte) ([]map[string]string, error) {
	if DetectFormat(name) == FormatXLSX {
		return ParseXLSX(data, XLSXOptions{})
	}
	return ParseCSV(ctx, bytes.NewReader(data), CSVOptions{})
}
