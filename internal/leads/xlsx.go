package leads

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"github.com/zentiam/leadbot/internal/domain"
)

// SheetName is the worksheet that receives lead rows.
const SheetName = "Leads"

// Workbook appends lead rows to a local .xlsx file. Writes are serialized;
// each Log opens, appends and saves the workbook so the file on disk is
// always complete.
type Workbook struct {
	path    string
	builder *Builder
	now     func() time.Time
	mu      sync.Mutex
}

// NewWorkbook returns a sink writing to path. The file is created with a
// styled header row on first use.
func NewWorkbook(path string, builder *Builder) *Workbook {
	return &Workbook{path: path, builder: builder, now: time.Now}
}

// Path returns the workbook location.
func (w *Workbook) Path() string { return w.path }

// Log appends one row for session.
func (w *Workbook) Log(ctx context.Context, session *domain.ChatSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := w.builder.Build(session, w.now())

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("failed to close lead workbook", "path", w.path, "error", closeErr)
		}
	}()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return fmt.Errorf("read lead sheet: %w", err)
	}
	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return fmt.Errorf("resolve next row: %w", err)
	}
	values := toCells(row.Values())
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("write lead row: %w", err)
	}
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save lead workbook: %w", err)
	}

	slog.Info("lead logged", "session_id", session.SessionID, "status", row.Status, "path", w.path)
	return nil
}

// open loads the workbook or creates it with a header row.
func (w *Workbook) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(w.path)
	if err == nil {
		if idx, _ := f.GetSheetIndex(SheetName); idx < 0 {
			if err := initSheet(f, false); err != nil {
				_ = f.Close()
				return nil, err
			}
		}
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("open lead workbook: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return nil, fmt.Errorf("create workbook directory: %w", err)
	}
	f = excelize.NewFile()
	if err := initSheet(f, true); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func initSheet(f *excelize.File, fresh bool) error {
	if fresh {
		if err := f.SetSheetName("Sheet1", SheetName); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := f.NewSheet(SheetName); err != nil {
		return fmt.Errorf("create lead sheet: %w", err)
	}

	header := toCells(Header)
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"3366CC"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(Header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, style); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// ReadRows returns the data rows of the workbook at path, header excluded.
func ReadRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open lead workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("read lead sheet: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	return rows[1:], nil
}

// Recent returns up to limit rows, newest first. A workbook that does not
// exist yet has no rows.
func (w *Workbook) Recent(limit int) ([]Row, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	values, err := ReadRows(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(values) {
		limit = len(values)
	}
	out := make([]Row, 0, limit)
	for i := len(values) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, RowFromValues(values[i]))
	}
	return out, nil
}

// WorkbookStatus describes the workbook file.
type WorkbookStatus struct {
	Path     string `json:"path"`
	Exists   bool   `json:"exists"`
	Writable bool   `json:"writable"`
	Rows     int    `json:"rows"`
	Error    string `json:"error,omitempty"`
}

// Status reports whether the workbook can take new rows.
func (w *Workbook) Status() WorkbookStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := WorkbookStatus{Path: w.path}
	if _, err := os.Stat(w.path); err == nil {
		st.Exists = true
		rows, err := ReadRows(w.path)
		if err != nil {
			st.Error = err.Error()
		}
		st.Rows = len(rows)
		f, err := os.OpenFile(w.path, os.O_WRONLY, 0)
		if err == nil {
			st.Writable = true
			_ = f.Close()
		}
		return st
	}

	// Not created yet: writable when its directory accepts files.
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		st.Error = err.Error()
		return st
	}
	probe, err := os.CreateTemp(dir, ".leads-*")
	if err != nil {
		st.Error = err.Error()
		return st
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())
	st.Writable = true
	return st
}
