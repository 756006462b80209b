// Package export renders applications and attendance rows as CSV or XLSX
// downloads for spreadsheet users.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/celerix-dev/celerix-staffing/internal/dashboard"
	"github.com/celerix-dev/celerix-staffing/pkg/schema"
	"github.com/xuri/excelize/v2"
)

// Format is a download format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var ErrUnknownFormat = errors.New("format must be csv or xlsx")

// ParseFormat maps "" to CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType is the MIME type sent with the download.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename builds "<prefix>_<date>.<ext>".
func Filename(prefix, date string, f Format) string {
	return fmt.Sprintf("%s_%s.%s", prefix, date, f)
}

// Spreadsheet applications open UTF-8 CSV correctly only with a byte order mark.
const bom = "\ufeff"

// Table is a header row plus data rows.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]string
}

// Write renders t in format f.
func (t Table) Write(w io.Writer, f Format) error {
	if f == FormatXLSX {
		return t.WriteXLSX(w)
	}
	return t.WriteCSV(w)
}

// WriteCSV writes a BOM, then comma separated CRLF lines. Quotes inside
// fields are doubled.
func (t Table) WriteCSV(w io.Writer) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteXLSX writes a single-sheet workbook with a bold header row.
func (t Table) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1", &t.Header); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(t.Header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return err
	}

	for i, row := range t.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

var applicationHeader = []string{
	"応募日時", "案件ID", "氏名", "ふりがな", "電話番号",
	"メールアドレス", "現住所", "職歴", "希望条件", "ステータス",
}

// Applications tabulates apps in the given order. Submission times are shown
// in loc.
func Applications(apps []schema.Application, loc *time.Location) Table {
	if loc == nil {
		loc = time.UTC
	}
	t := Table{Sheet: "applications", Header: applicationHeader, Rows: make([][]string, 0, len(apps))}
	for _, a := range apps {
		t.Rows = append(t.Rows, []string{
			a.CreatedAt.In(loc).Format("2006/01/02 15:04:05"),
			a.FromID,
			a.Name,
			a.Kana,
			a.Phone,
			a.Email,
			a.Address,
			a.WorkHistory,
			a.DesiredConditions,
			a.Status.Label(),
		})
	}
	return t
}

var attendanceHeader = []string{
	"日付", "スタッフ名", "部署", "出勤時刻", "退勤時刻",
	"休憩開始", "休憩終了", "勤務場所", "勤務時間", "ステータス", "メモ",
}

// Attendance tabulates dashboard rows. Instants are shown as times of day in loc.
func Attendance(rows []dashboard.Row, loc *time.Location) Table {
	if loc == nil {
		loc = time.UTC
	}
	clock := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.In(loc).Format("15:04:05")
	}
	t := Table{Sheet: "attendance", Header: attendanceHeader, Rows: make([][]string, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			r.Date,
			r.StaffName,
			r.Department,
			clock(r.ClockInTime),
			clock(r.ClockOutTime),
			clock(r.BreakStartTime),
			clock(r.BreakEndTime),
			r.WorkLocation,
			r.WorkingHours,
			r.Status.Label(),
			r.Notes,
		})
	}
	return t
}
