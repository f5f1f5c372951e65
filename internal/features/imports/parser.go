package imports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go-catalog/internal/config"

	"github.com/xuri/excelize/v2"
)

// maxRecordedWarnings caps the per-session parse warning list; beyond it only
// a count is kept.
const maxRecordedWarnings = 25

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseResult is the parser output: detected headers plus one RawRecord per
// data row, with any tolerated anomalies recorded as warnings.
type ParseResult struct {
	Headers  []string
	Rows     []RawRecord
	Warnings []string
	ByteSize int64
}

// Parser turns an uploaded byte stream into tabular records. It knows nothing
// about the target schema; ceilings come from configuration.
type Parser struct {
	MaxBytes int64
	MaxRows  int
}

func NewParser(cfg *config.Config) *Parser {
	return &Parser{
		MaxBytes: cfg.MaxUploadBytes,
		MaxRows:  cfg.MaxRows,
	}
}

// Parse reads the whole upload (bounded by the byte ceiling), picks a format
// from the filename and content type, and decodes it. Fatal failures return a
// ParseError carrying a reason code; recoverable anomalies are padded or
// truncated and recorded as warnings.
func (p *Parser) Parse(filename, contentType string, r io.Reader) (*ParseResult, error) {
	data, err := io.ReadAll(io.LimitReader(r, p.MaxBytes+1))
	if err != nil {
		return nil, &ParseError{Reason: ReasonUnreadableFile, Err: err}
	}
	if int64(len(data)) > p.MaxBytes {
		return nil, &ParseError{Reason: ReasonByteLimitExceeded, Err: fmt.Errorf("upload exceeds %d bytes", p.MaxBytes)}
	}
	if len(data) == 0 {
		return nil, &ParseError{Reason: ReasonEmptyFile}
	}

	var result *ParseResult
	switch detectFormat(filename, contentType, data) {
	case "csv":
		result, err = p.parseCSV(data)
	case "excel":
		result, err = p.parseExcel(data)
	default:
		return nil, &ParseError{Reason: ReasonUnsupportedFormat, Err: fmt.Errorf("cannot import %q", filename)}
	}
	if err != nil {
		return nil, err
	}

	result.ByteSize = int64(len(data))
	return result, nil
}

// detectFormat picks csv or excel from the filename extension, falling back
// to the declared content type and finally a zip-magic sniff for xlsx.
func detectFormat(filename, contentType string, data []byte) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".tsv", ".txt":
		return "csv"
	case ".xlsx", ".xls":
		return "excel"
	}

	switch {
	case strings.Contains(contentType, "csv"), strings.Contains(contentType, "text/plain"):
		return "csv"
	case strings.Contains(contentType, "spreadsheet"), strings.Contains(contentType, "ms-excel"):
		return "excel"
	}

	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return "excel"
	}
	return ""
}

func (p *Parser) parseCSV(data []byte) (*ParseResult, error) {
	// Strip the UTF-8 BOM Windows tools prepend, then degrade any broken
	// encoding to replacement characters instead of failing the batch.
	data = bytes.TrimPrefix(data, utf8BOM)

	var warnings []string
	if !utf8.Valid(data) {
		data = []byte(strings.ToValidUTF8(string(data), "?"))
		warnings = append(warnings, "file contained invalid UTF-8, bad bytes replaced")
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1 // tolerate ragged rows, we pad/truncate below
	reader.LazyQuotes = true

	table, err := reader.ReadAll()
	if err != nil {
		return nil, &ParseError{Reason: ReasonUnreadableFile, Err: err}
	}
	if len(table) == 0 {
		return nil, &ParseError{Reason: ReasonEmptyFile}
	}

	return p.buildResult(table, warnings)
}

func (p *Parser) parseExcel(data []byte) (*ParseResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Reason: ReasonUnreadableFile, Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Reason: ReasonEmptyFile}
	}

	// First sheet only, same as the download templates we hand out.
	table, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Reason: ReasonUnreadableFile, Err: err}
	}
	if len(table) == 0 {
		return nil, &ParseError{Reason: ReasonEmptyFile}
	}

	return p.buildResult(table, nil)
}

// buildResult normalizes headers, enforces the row ceiling and converts rows
// into header-keyed records, padding or truncating ragged rows.
func (p *Parser) buildResult(table [][]string, warnings []string) (*ParseResult, error) {
	if len(table)-1 > p.MaxRows {
		return nil, &ParseError{
			Reason: ReasonRowLimitExceeded,
			Err:    fmt.Errorf("%d rows exceeds the limit of %d", len(table)-1, p.MaxRows),
		}
	}

	headers, headerWarnings := normalizeHeaders(table[0])
	warnings = append(warnings, headerWarnings...)
	if len(headers) == 0 {
		return nil, &ParseError{Reason: ReasonEmptyFile, Err: fmt.Errorf("no column headers found")}
	}

	rows := make([]RawRecord, 0, len(table)-1)
	ragged := 0
	for i, row := range table[1:] {
		if len(row) != len(headers) {
			ragged++
			if len(warnings) < maxRecordedWarnings {
				warnings = append(warnings, fmt.Sprintf("row %d has %d cells, expected %d", i+1, len(row), len(headers)))
			}
		}

		record := make(RawRecord, len(headers))
		for j, header := range headers {
			if j < len(row) {
				record[header] = strings.TrimRight(row[j], "\r")
			} else {
				record[header] = ""
			}
		}
		rows = append(rows, record)
	}

	if ragged > maxRecordedWarnings {
		warnings = append(warnings, fmt.Sprintf("%d rows in total were padded or truncated", ragged))
	}

	return &ParseResult{Headers: headers, Rows: rows, Warnings: warnings}, nil
}

// normalizeHeaders trims header cells and guarantees every column a unique,
// non-empty name so rows can be keyed by header.
func normalizeHeaders(raw []string) ([]string, []string) {
	var warnings []string
	seen := make(map[string]int)
	headers := make([]string, 0, len(raw))

	for i, h := range raw {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
			warnings = append(warnings, fmt.Sprintf("column %d has no header, named %q", i+1, name))
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			renamed := fmt.Sprintf("%s_%d", name, n+1)
			warnings = append(warnings, fmt.Sprintf("duplicate header %q renamed to %q", name, renamed))
			name = renamed
		}
		seen[name]++
		headers = append(headers, name)
	}

	return headers, warnings
}

// sniffDelimiter inspects the first line and picks the most frequent
// candidate delimiter outside quoted regions. Comma wins ties.
func sniffDelimiter(data []byte) rune {
	line := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		line = data[:idx]
	}

	counts := map[rune]int{',': 0, ';': 0, '\t': 0, '|': 0}
	inQuotes := false
	for _, r := range string(line) {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		if _, ok := counts[r]; ok {
			counts[r]++
		}
	}

	best := ','
	bestCount := counts[',']
	for _, candidate := range []rune{';', '\t', '|'} {
		if counts[candidate] > bestCount {
			best = candidate
			bestCount = counts[candidate]
		}
	}
	return best
}
