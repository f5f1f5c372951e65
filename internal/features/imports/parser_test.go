package imports

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func testParser() *Parser {
	return &Parser{MaxBytes: 1 << 20, MaxRows: 1000}
}

func parseCSV(t *testing.T, p *Parser, content string) *ParseResult {
	t.Helper()
	result, err := p.Parse("upload.csv", "text/csv", strings.NewReader(content))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return result
}

func TestParseCSV(t *testing.T) {
	result := parseCSV(t, testParser(), "Name,Price\nWidget,9.99\nGadget,19.50\n")

	if got, want := len(result.Headers), 2; got != want {
		t.Fatalf("got %d headers, want %d", got, want)
	}
	if result.Headers[0] != "Name" || result.Headers[1] != "Price" {
		t.Errorf("headers = %v", result.Headers)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(result.Rows))
	}
	if result.Rows[0]["Name"] != "Widget" || result.Rows[1]["Price"] != "19.50" {
		t.Errorf("rows = %v", result.Rows)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
	if result.ByteSize == 0 {
		t.Error("ByteSize not recorded")
	}
}

func TestParseCSVStripsBOM(t *testing.T) {
	result := parseCSV(t, testParser(), "\xEF\xBB\xBFName,Price\nWidget,9.99\n")
	if result.Headers[0] != "Name" {
		t.Errorf("first header = %q, BOM not stripped", result.Headers[0])
	}
}

func TestParseCSVSniffsDelimiter(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"semicolon", "Name;Price\nWidget;9.99\n"},
		{"tab", "Name\tPrice\nWidget\t9.99\n"},
		{"pipe", "Name|Price\nWidget|9.99\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseCSV(t, testParser(), tt.content)
			if len(result.Headers) != 2 {
				t.Fatalf("headers = %v, want 2 columns", result.Headers)
			}
			if result.Rows[0]["Price"] != "9.99" {
				t.Errorf("row = %v", result.Rows[0])
			}
		})
	}
}

func TestParseCSVRaggedRows(t *testing.T) {
	result := parseCSV(t, testParser(), "a,b\n1\n2,3,4\n")

	if len(result.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(result.Rows))
	}
	// Short row padded with empty cells.
	if result.Rows[0]["a"] != "1" || result.Rows[0]["b"] != "" {
		t.Errorf("padded row = %v", result.Rows[0])
	}
	// Long row truncated to the header width.
	if result.Rows[1]["a"] != "2" || result.Rows[1]["b"] != "3" {
		t.Errorf("truncated row = %v", result.Rows[1])
	}
	if len(result.Warnings) != 2 {
		t.Errorf("warnings = %v, want one per ragged row", result.Warnings)
	}
}

func TestParseCSVHeaderNormalization(t *testing.T) {
	result := parseCSV(t, testParser(), "Name,Name,,  Price \nx,y,z,9\n")

	want := []string{"Name", "Name_2", "column_3", "Price"}
	if len(result.Headers) != len(want) {
		t.Fatalf("headers = %v", result.Headers)
	}
	for i, h := range want {
		if result.Headers[i] != h {
			t.Errorf("headers[%d] = %q, want %q", i, result.Headers[i], h)
		}
	}
	if result.Rows[0]["Name_2"] != "y" || result.Rows[0]["column_3"] != "z" {
		t.Errorf("row = %v", result.Rows[0])
	}
	if len(result.Warnings) < 2 {
		t.Errorf("warnings = %v, want rename and naming notices", result.Warnings)
	}
}

func TestParseCSVInvalidUTF8(t *testing.T) {
	result := parseCSV(t, testParser(), "Name\n\xffWidget\n")
	if len(result.Warnings) == 0 {
		t.Error("expected an encoding warning")
	}
	if strings.Contains(result.Rows[0]["Name"], "\xff") {
		t.Errorf("invalid bytes survived: %q", result.Rows[0]["Name"])
	}
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name        string
		parser      *Parser
		filename    string
		contentType string
		content     string
		wantReason  string
	}{
		{
			name:       "empty file",
			parser:     testParser(),
			filename:   "upload.csv",
			content:    "",
			wantReason: ReasonEmptyFile,
		},
		{
			name:       "byte ceiling",
			parser:     &Parser{MaxBytes: 10, MaxRows: 1000},
			filename:   "upload.csv",
			content:    "Name,Price\nWidget,9.99\n",
			wantReason: ReasonByteLimitExceeded,
		},
		{
			name:       "row ceiling",
			parser:     &Parser{MaxBytes: 1 << 20, MaxRows: 2},
			filename:   "upload.csv",
			content:    "Name\na\nb\nc\n",
			wantReason: ReasonRowLimitExceeded,
		},
		{
			name:        "unsupported format",
			parser:      testParser(),
			filename:    "report.pdf",
			contentType: "application/pdf",
			content:     "%PDF-1.4 not a table",
			wantReason:  ReasonUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parser.Parse(tt.filename, tt.contentType, strings.NewReader(tt.content))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse() error = %v, want *ParseError", err)
			}
			if pe.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", pe.Reason, tt.wantReason)
			}
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		data        []byte
		want        string
	}{
		{"csv extension", "data.csv", "", nil, "csv"},
		{"tsv extension", "data.tsv", "", nil, "csv"},
		{"xlsx extension", "data.xlsx", "", nil, "excel"},
		{"csv content type", "upload", "text/csv; charset=utf-8", nil, "csv"},
		{"excel content type", "upload", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", nil, "excel"},
		{"zip magic", "upload", "", []byte("PK\x03\x04rest"), "excel"},
		{"unknown", "report.pdf", "application/pdf", []byte("%PDF"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectFormat(tt.filename, tt.contentType, tt.data); got != tt.want {
				t.Errorf("detectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseExcel(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Name", "Price", "Quantity"},
		{"Widget", 9.99, 5},
		{"Gadget", 19.5, 3},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName() error = %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	result, err := testParser().Parse("items.xlsx", "", bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Headers) != 3 || result.Headers[0] != "Name" {
		t.Fatalf("headers = %v", result.Headers)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(result.Rows))
	}
	if result.Rows[0]["Name"] != "Widget" || result.Rows[1]["Name"] != "Gadget" {
		t.Errorf("rows = %v", result.Rows)
	}
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name string
		line string
		want rune
	}{
		{"comma", "a,b,c", ','},
		{"semicolon", "a;b;c", ';'},
		{"comma wins ties", "a,b;c", ','},
		{"quoted separators ignored", `"a;b;c";d`, ';'},
		{"no separators", "justoneheader", ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniffDelimiter([]byte(tt.line)); got != tt.want {
				t.Errorf("sniffDelimiter() = %q, want %q", got, tt.want)
			}
		})
	}
}
