// Package transfer reads and writes control sets in the bulk formats users
// exchange with spreadsheets: CSV, JSON and XLSX.
//
// Imports are all or nothing: either every row parses or an error is returned
// and no controls are produced.
package transfer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"controlroom/internal/store"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrMissingIDColumn   = errors.New("no column maps to the control id")
	ErrMissingID         = errors.New("control id is required")
	ErrEmptyImport       = errors.New("no controls found")
)

// RowError points at the first row that failed to import. Row is 1-based
// and counts the header for tabular formats.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

const sheetName = "Controls"

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), "."))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatXLSX, "xls", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
	}
}

// DetectFormat picks a format from a file name, falling back to the content type.
func DetectFormat(filename, contentType string) (Format, error) {
	if ext := filepath.Ext(filename); ext != "" {
		if format, err := ParseFormat(ext); err == nil {
			return format, nil
		}
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch {
	case mediaType == "text/csv":
		return FormatCSV, nil
	case mediaType == "application/json":
		return FormatJSON, nil
	case strings.Contains(mediaType, "spreadsheetml"), mediaType == "application/vnd.ms-excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
}

// Import parses controls from r in the given format.
func Import(r io.Reader, format Format) ([]store.Control, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(r)
	case FormatJSON:
		return ParseJSON(r)
	case FormatXLSX:
		return ParseXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Export writes controls to w in the given format.
func Export(w io.Writer, format Format, controls []store.Control) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, controls)
	case FormatJSON:
		return WriteJSON(w, controls)
	case FormatXLSX:
		return WriteXLSX(w, controls)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func ParseCSV(r io.Reader) ([]store.Control, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return parseRows(rows)
}

func ParseXLSX(r io.Reader) ([]store.Control, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyImport
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return parseRows(rows)
}

// parseRows treats the first non-blank row as the header.
func parseRows(rows [][]string) ([]store.Control, error) {
	headerAt := -1
	for i, row := range rows {
		if !blankRow(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, ErrEmptyImport
	}
	columns, err := columnMap(rows[headerAt])
	if err != nil {
		return nil, err
	}

	controls := make([]store.Control, 0, len(rows)-headerAt-1)
	for i := headerAt + 1; i < len(rows); i++ {
		if blankRow(rows[i]) {
			continue
		}
		control, err := rowRecord(rows[i], columns).toControl()
		if err != nil {
			return nil, &RowError{Row: i + 1, Err: err}
		}
		controls = append(controls, control)
	}
	if len(controls) == 0 {
		return nil, ErrEmptyImport
	}
	return controls, nil
}

// jsonControl mirrors store.Control with loose field types so unknown enum
// values can be coerced instead of rejected.
type jsonControl struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	Description           string          `json:"description"`
	Category              string          `json:"category"`
	Status                string          `json:"status"`
	Type                  string          `json:"type"`
	Owner                 string          `json:"owner"`
	OwnerEmail            string          `json:"ownerEmail"`
	Frameworks            json.RawMessage `json:"frameworks"`
	EvidenceIDs           []string        `json:"evidenceIds"`
	LastTested            string          `json:"lastTested"`
	NextReview            string          `json:"nextReview"`
	TestFrequency         string          `json:"testFrequency"`
	ImplementationDetails string          `json:"implementationDetails"`
	FailureReason         string          `json:"failureReason"`
}

// ParseJSON reads an array of control objects. Evidence IDs are kept when
// present; frameworks may be an array or a ";" separated string.
func ParseJSON(r io.Reader) ([]store.Control, error) {
	var items []jsonControl
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&items); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyImport
	}

	controls := make([]store.Control, 0, len(items))
	for i, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			return nil, &RowError{Row: i + 1, Err: ErrMissingID}
		}
		frameworks, err := decodeFrameworks(item.Frameworks)
		if err != nil {
			return nil, &RowError{Row: i + 1, Err: err}
		}
		controls = append(controls, store.Control{
			ID:                    id,
			Name:                  item.Name,
			Description:           item.Description,
			Category:              CoerceCategory(item.Category),
			Status:                CoerceStatus(item.Status),
			Type:                  CoerceType(item.Type),
			Owner:                 item.Owner,
			OwnerEmail:            item.OwnerEmail,
			Frameworks:            frameworks,
			EvidenceIDs:           store.CloneStrings(item.EvidenceIDs),
			LastTested:            item.LastTested,
			NextReview:            item.NextReview,
			TestFrequency:         item.TestFrequency,
			ImplementationDetails: item.ImplementationDetails,
			FailureReason:         item.FailureReason,
		})
	}
	return controls, nil
}

func decodeFrameworks(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []string{}, nil
	}
	if raw[0] == '"' {
		var joined string
		if err := json.Unmarshal(raw, &joined); err != nil {
			return nil, fmt.Errorf("frameworks: %w", err)
		}
		return SplitFrameworks(joined), nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("frameworks: %w", err)
	}
	return store.CloneStrings(list), nil
}

func WriteCSV(w io.Writer, controls []store.Control) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeader); err != nil {
		return err
	}
	for _, control := range controls {
		if err := writer.Write(controlRow(control)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func WriteJSON(w io.Writer, controls []store.Control) error {
	if controls == nil {
		controls = []store.Control{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(controls)
}

func WriteXLSX(w io.Writer, controls []store.Control) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return err
	}
	if err := setRow(f, 1, CSVHeader); err != nil {
		return err
	}
	for i, control := range controls {
		if err := setRow(f, i+2, controlRow(control)); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, value := range values {
		cells[i] = value
	}
	return f.SetSheetRow(sheetName, cell, &cells)
}
