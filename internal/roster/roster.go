// Package roster imports the staff master from the HR spreadsheet. Both the
// current .xlsx format and legacy .xls exports are accepted.
package roster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/celerix-dev/celerix-staffing/pkg/schema"
	"github.com/celerix-dev/celerix-staffing/pkg/sdk"
	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

const maxRows = 100000

var (
	ErrEmptySheet     = errors.New("worksheet is empty")
	ErrMissingColumns = errors.New("missing required columns")
)

// ReadRows returns every row of the first worksheet. The format is chosen by
// the file extension; anything but .xls is read as xlsx.
func ReadRows(filename string, r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xls":
		workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, fmt.Errorf("open xls: %w", err)
		}
		if workbook.NumSheets() == 0 {
			return nil, fmt.Errorf("no worksheet found")
		}
		rows := workbook.ReadAllCells(maxRows)
		if len(rows) == 0 {
			return nil, ErrEmptySheet
		}
		return rows, nil
	default:
		file, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open xlsx: %w", err)
		}
		defer func() { _ = file.Close() }()

		sheetName := file.GetSheetName(0)
		if sheetName == "" {
			return nil, fmt.Errorf("no worksheet found")
		}
		rows, err := file.GetRows(sheetName)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, ErrEmptySheet
		}
		return rows, nil
	}
}

// Header aliases, Japanese first.
var columns = map[string][]string{
	"name":            {"氏名", "名前", "name"},
	"employee_id":     {"社員番号", "従業員番号", "employee_id", "employee id"},
	"department":      {"部署", "department"},
	"position":        {"役職", "職種", "position"},
	"hourly_rate":     {"時給", "hourly_rate", "hourly rate"},
	"savings_goal":    {"貯金目標", "savings_goal", "savings goal"},
	"current_savings": {"現在の貯金", "current_savings", "current savings"},
}

var required = []string{"name", "employee_id", "department"}

// RowError describes a row that could not be imported. Line is 1-based and
// counts the header.
type RowError struct {
	Line int    `json:"line"`
	Msg  string `json:"message"`
}

func (e RowError) Error() string { return fmt.Sprintf("line %d: %s", e.Line, e.Msg) }

// Parse maps spreadsheet rows to staff. The first row is the header. Rows
// with problems are reported and skipped; blank rows are ignored.
func Parse(rows [][]string) ([]schema.Staff, []RowError, error) {
	if len(rows) == 0 {
		return nil, nil, ErrEmptySheet
	}

	index := make(map[string]int)
	for i, h := range rows[0] {
		h = normalizeHeader(h)
		for field, aliases := range columns {
			for _, a := range aliases {
				if h == a {
					index[field] = i
				}
			}
		}
	}
	var missing []string
	for _, f := range required {
		if _, ok := index[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	col := func(row []string, field string) string {
		i, ok := index[field]
		if !ok {
			return ""
		}
		return cellValue(row, i)
	}

	var staff []schema.Staff
	var problems []RowError
	for n, row := range rows[1:] {
		line := n + 2
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}

		s := schema.Staff{
			Name:       col(row, "name"),
			EmployeeID: col(row, "employee_id"),
			Department: col(row, "department"),
			Position:   col(row, "position"),
		}
		switch {
		case s.Name == "":
			problems = append(problems, RowError{line, "name is empty"})
			continue
		case s.EmployeeID == "":
			problems = append(problems, RowError{line, "employee id is empty"})
			continue
		case !schema.ValidDepartment(s.Department):
			problems = append(problems, RowError{line, fmt.Sprintf("unknown department %q", s.Department)})
			continue
		}

		var err error
		if s.HourlyRate, err = parseYen(col(row, "hourly_rate")); err != nil {
			problems = append(problems, RowError{line, "hourly rate: " + err.Error()})
			continue
		}
		if s.SavingsGoal, err = parseYen(col(row, "savings_goal")); err != nil {
			problems = append(problems, RowError{line, "savings goal: " + err.Error()})
			continue
		}
		if s.CurrentSavings, err = parseYen(col(row, "current_savings")); err != nil {
			problems = append(problems, RowError{line, "current savings: " + err.Error()})
			continue
		}
		staff = append(staff, s)
	}
	return staff, problems, nil
}

// Result counts what Import did.
type Result struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// Import upserts staff by employee id. Existing records keep their id so
// attendance history stays attached.
func Import(ctx context.Context, store recordstore.Store, staff []schema.Staff) (Result, error) {
	var res Result
	for _, s := range staff {
		existing, err := sdk.FindOne[schema.Staff](ctx, store, schema.CollectionStaff,
			recordstore.Where(recordstore.Eq("employee_id", s.EmployeeID)))
		switch {
		case errors.Is(err, recordstore.ErrNotFound):
			if _, err := sdk.Insert(ctx, store, schema.CollectionStaff, s); err != nil {
				return res, fmt.Errorf("insert %s: %w", s.EmployeeID, err)
			}
			res.Created++
		case err != nil:
			return res, fmt.Errorf("look up %s: %w", s.EmployeeID, err)
		default:
			_, err := store.Update(ctx, schema.CollectionStaff, existing.ID, recordstore.Record{
				"name":            s.Name,
				"department":      s.Department,
				"position":        s.Position,
				"hourly_rate":     s.HourlyRate,
				"savings_goal":    s.SavingsGoal,
				"current_savings": s.CurrentSavings,
			})
			if err != nil {
				return res, fmt.Errorf("update %s: %w", s.EmployeeID, err)
			}
			res.Updated++
		}
	}
	return res, nil
}

func normalizeHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseYen accepts "1,200", "¥1200" and "1200円". Empty is zero.
func parseYen(v string) (int64, error) {
	v = strings.NewReplacer(",", "", "¥", "", "￥", "", "円", "").Replace(strings.TrimSpace(v))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		n = int64(f)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative amount %d", n)
	}
	return n, nil
}
