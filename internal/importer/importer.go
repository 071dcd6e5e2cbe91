// Package importer reads bulk issuance rows from spreadsheets and documents.
package importer

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format, expected .xlsx, .csv or .docx")
	ErrNoColumns         = errors.New("no recognized columns in header row")
	ErrEmpty             = errors.New("file contains no rows")
)

const (
	ColumnRegistrationNo = "registration_no"
	ColumnFullName       = "full_name"
	ColumnCourse         = "course"
	ColumnEmail          = "email"
)

var aliases = map[string]string{
	"registration_no":     ColumnRegistrationNo,
	"registration_number": ColumnRegistrationNo,
	"reg_no":              ColumnRegistrationNo,
	"full_name":           ColumnFullName,
	"student_name":        ColumnFullName,
	"name":                ColumnFullName,
	"course":              ColumnCourse,
	"course_name":         ColumnCourse,
	"email":               ColumnEmail,
	"email_address":       ColumnEmail,
}

// Row is one data row. Line is the 1-based line of the row in its table,
// counting the header.
type Row struct {
	Line           int
	RegistrationNo string
	FullName       string
	Course         string
	Email          string
}

// Parse reads rows from r, choosing the format by the file extension of name.
func Parse(name string, r io.Reader) ([]Row, error) {
	var tables [][][]string
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		tables, err = readXLSX(r)
	case ".csv":
		tables, err = readCSV(r)
	case ".docx":
		tables, err = readDOCX(r)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	return rows(tables)
}

// NormalizeHeader trims, lower-cases and replaces spaces with underscores.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.Join(strings.Fields(h), "_")
}

// rows maps every table onto the header of the first one. Later tables may
// repeat the header row.
func rows(tables [][][]string) ([]Row, error) {
	if len(tables) == 0 || len(tables[0]) == 0 {
		return nil, ErrEmpty
	}

	header := tables[0][0]
	columns := make(map[string]int)
	for i, h := range header {
		if col, ok := aliases[NormalizeHeader(h)]; ok {
			if _, seen := columns[col]; !seen {
				columns[col] = i
			}
		}
	}
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}

	raw := func(record []string, col string) string {
		i, ok := columns[col]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}
	cell := func(record []string, col string) string {
		return strings.TrimSpace(raw(record, col))
	}

	var out []Row
	for t, table := range tables {
		for i, record := range table {
			if i == 0 && (t == 0 || sameHeader(header, record)) {
				continue
			}
			if blank(record) {
				continue
			}
			out = append(out, Row{
				Line:           i + 1,
				RegistrationNo: cell(record, ColumnRegistrationNo),
				FullName:       cell(record, ColumnFullName),
				// Course names are kept exactly as written.
				Course:         raw(record, ColumnCourse),
				Email:          cell(record, ColumnEmail),
			})
		}
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

func sameHeader(header, record []string) bool {
	if len(header) != len(record) {
		return false
	}
	for i := range header {
		if NormalizeHeader(header[i]) != NormalizeHeader(record[i]) {
			return false
		}
	}
	return true
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func readXLSX(r io.Reader) ([][][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return [][][]string{records}, nil
}

func readCSV(r io.Reader) ([][][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return [][][]string{records}, nil
}

// readDOCX returns the tables of a Word document body.
func readDOCX(r io.Reader) ([][][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}

	var body io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body, err = f.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open document body: %w", err)
			}
			break
		}
	}
	if body == nil {
		return nil, fmt.Errorf("failed to open document: word/document.xml missing")
	}
	defer body.Close()

	var (
		tables [][][]string
		row    []string
		cell   strings.Builder
		depth  int
		inText bool
	)
	dec := xml.NewDecoder(body)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse document body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				depth++
				if depth == 1 {
					tables = append(tables, nil)
				}
			case "tr":
				if depth == 1 {
					row = nil
				}
			case "tc":
				if depth == 1 {
					cell.Reset()
				}
			case "t":
				inText = depth > 0
			case "p":
				if depth > 0 && cell.Len() > 0 {
					cell.WriteByte(' ')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				depth--
			case "tr":
				if depth == 1 {
					tables[len(tables)-1] = append(tables[len(tables)-1], row)
				}
			case "tc":
				if depth == 1 {
					row = append(row, cell.String())
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				cell.Write(t)
			}
		}
	}
	return tables, nil
}
