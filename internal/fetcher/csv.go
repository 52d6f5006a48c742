package fetcher

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// sniffBytes bounds how much of the input is inspected to pick a delimiter.
const sniffBytes = 64 << 10

// delimiters are the separators SniffDelimiter chooses from, in tie-break order.
var delimiters = []rune{',', ';', '\t', '|'}

// CSVOptions configures delimited text parsing.
type CSVOptions struct {
	// Delimiter separates cells. Zero sniffs it from the header line.
	Delimiter rune
	// Comment marks lines to ignore (0 = none).
	Comment rune
}

// SniffDelimiter returns the candidate separator that appears most often
// outside quotes in line, or comma when none appears.
func SniffDelimiter(line string) rune {
	counts := make(map[rune]int, len(delimiters))
	inQuotes := false
	for _, r := range line {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best, bestN := ',', 0
	for _, d := range delimiters {
		if counts[d] > bestN {
			best, bestN = d, counts[d]
		}
	}
	return best
}

// StreamCSV reads delimited rows and sends them, trimmed, on the returned
// channel. Quotes are parsed leniently and rows may vary in length. The
// error channel receives at most one error; both channels are closed when
// reading stops.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.Comment = opts.Comment
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		for n := 1; ; n++ {
			if err := ctx.Err(); err != nil {
				errCh <- eris.Wrap(err, "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errCh <- eris.Wrapf(err, "csv: read record %d", n)
				return
			}
			for i := range record {
				record[i] = strings.TrimSpace(record[i])
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ParseCSV reads delimited text into records keyed by the first non-blank
// row. Blank rows are skipped and values are trimmed.
func ParseCSV(ctx context.Context, r io.Reader, opts CSVOptions) ([]map[string]string, error) {
	br := bufio.NewReaderSize(r, sniffBytes)
	if opts.Delimiter == 0 {
		opts.Delimiter = SniffDelimiter(firstLine(br))
	}

	rowCh, errCh := StreamCSV(ctx, br, opts)

	var header []string
	var rows [][]string
	for row := range rowCh {
		switch {
		case header != nil:
			rows = append(rows, row)
		case !isBlank(row):
			header = row
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if header == nil {
		return []map[string]string{}, nil
	}
	return Records(header, rows), nil
}

// firstLine returns the first non-blank line in the buffered prefix of br
// without consuming it.
func firstLine(br *bufio.Reader) string {
	buf, _ := br.Peek(sniffBytes) // short reads return what is buffered
	for _, line := range strings.Split(string(buf), "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}
