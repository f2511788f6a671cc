package dataload

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is the container format of an uploaded file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromFilename picks the reader from the file extension.
func FormatFromFilename(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, true
	case ".xlsx":
		return FormatXLSX, true
	}
	return "", false
}

// Row is one data line of an uploaded file. Number is the 1-based file line (header is line 1).
type Row struct {
	Number int
	Fields map[string]string
}

// Get returns the trimmed value of a column, "" when absent.
func (r Row) Get(name string) string {
	return r.Fields[name]
}

// Has reports whether the column carries a non-empty value.
func (r Row) Has(name string) bool {
	return r.Fields[name] != ""
}

// Table is a parsed file: normalized headers plus its non-blank data rows.
type Table struct {
	Headers []string
	Rows    []Row
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadTable parses a CSV or XLSX stream. Structural problems are returned as *FatalError.
func ReadTable(r io.Reader, format Format) (*Table, error) {
	switch format {
	case FormatCSV:
		return readCSV(r)
	case FormatXLSX:
		return readXLSX(r)
	}
	return nil, InvalidFile(fmt.Sprintf("unsupported file format %q", format), nil)
}

func readCSV(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Fatal("failed to read file", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, InvalidFile("file is empty", nil)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, InvalidFile("failed to read CSV header", err)
	}
	table := &Table{Headers: normalizeHeaders(header)}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, InvalidFile("malformed CSV", err)
		}
		line, _ := reader.FieldPos(0)
		table.addRow(line, record)
	}
	return table, nil
}

func readXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, InvalidFile("failed to open Excel file", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, InvalidFile("no sheets found in Excel file", nil)
	}
	excelRows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, InvalidFile("failed to read sheet", err)
	}
	if len(excelRows) == 0 {
		return nil, InvalidFile("file is empty", nil)
	}

	table := &Table{Headers: normalizeHeaders(excelRows[0])}
	for i, excelRow := range excelRows[1:] {
		table.addRow(i+2, excelRow)
	}
	return table, nil
}

func (t *Table) addRow(line int, record []string) {
	fields := make(map[string]string, len(t.Headers))
	blank := true
	for i, header := range t.Headers {
		if header == "" {
			continue
		}
		value := ""
		if i < len(record) {
			value = strings.TrimSpace(record[i])
		}
		if value != "" {
			blank = false
		}
		fields[header] = value
	}
	if blank {
		return
	}
	t.Rows = append(t.Rows, Row{Number: line, Fields: fields})
}

func normalizeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		if i == 0 {
			h = strings.TrimPrefix(h, string(utf8BOM))
		}
		h = strings.TrimSpace(strings.ToLower(h))
		h = strings.TrimSpace(strings.TrimSuffix(h, "*"))
		out[i] = h
	}
	return out
}
