package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"comprobantes/internal/logger"
	"comprobantes/pkg/models"
)

// DefaultSheet is the worksheet used when none is configured.
const DefaultSheet = "Validaciones"

// XLSXSink buffers records and appends them to a workbook on Flush.
// An existing workbook keeps its rows; a missing one is created with headers.
type XLSXSink struct {
	path  string
	sheet string

	mu   sync.Mutex
	rows [][]interface{}
	log  zerolog.Logger
}

// NewXLSXSink creates a sink writing to path.
func NewXLSXSink(path, sheet string) (*XLSXSink, error) {
	if path == "" {
		return nil, errors.New("NewXLSXSink: workbook path is required")
	}
	if sheet == "" {
		sheet = DefaultSheet
	}
	return &XLSXSink{
		path:  path,
		sheet: sheet,
		log:   logger.WithComponent("xlsx"),
	}, nil
}

// Report buffers one record.
func (s *XLSXSink) Report(_ context.Context, record models.ValidationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, RecordValues(record))
	return nil
}

// Flush appends the buffered rows and saves the workbook.
func (s *XLSXSink) Flush(_ context.Context) error {
	const op = "Flush"

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rows) == 0 {
		return nil
	}

	f, err := s.open()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	existing, err := f.GetRows(s.sheet)
	if err != nil {
		return fmt.Errorf("%s: read rows: %w", op, err)
	}
	next := len(existing) + 1
	for _, row := range s.rows {
		cell, err := excelize.CoordinatesToCellName(1, next)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		row := row
		if err := f.SetSheetRow(s.sheet, cell, &row); err != nil {
			return fmt.Errorf("%s: write row %d: %w", op, next, err)
		}
		next++
	}

	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("%s: save %s: %w", op, s.path, err)
	}

	s.log.Info().Str("path", s.path).Int("rows", len(s.rows)).Msg("Wrote validation rows to workbook")
	s.rows = nil
	return nil
}

// open loads the workbook or creates it with a styled header row.
func (s *XLSXSink) open() (*excelize.File, error) {
	if _, err := os.Stat(s.path); err == nil {
		f, err := excelize.OpenFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", s.path, err)
		}
		if idx, _ := f.GetSheetIndex(s.sheet); idx < 0 {
			if err := s.addSheet(f); err != nil {
				f.Close()
				return nil, err
			}
		}
		return f, nil
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", s.sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := s.writeHeader(f); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (s *XLSXSink) addSheet(f *excelize.File) error {
	if _, err := f.NewSheet(s.sheet); err != nil {
		return fmt.Errorf("add sheet %s: %w", s.sheet, err)
	}
	return s.writeHeader(f)
}

func (s *XLSXSink) writeHeader(f *excelize.File) error {
	header := make([]interface{}, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(s.sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E6E6E6"}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetRowStyle(s.sheet, 1, 1, style); err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetColWidth(s.sheet, "A", LastColumn, 16); err != nil {
		return fmt.Errorf("column width: %w", err)
	}
	return nil
}
