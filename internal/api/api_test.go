package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/celerix-dev/celerix-staffing/internal/applications"
	"github.com/celerix-dev/celerix-staffing/internal/attendance"
	"github.com/celerix-dev/celerix-staffing/internal/dashboard"
	"github.com/celerix-dev/celerix-staffing/internal/events"
	"github.com/celerix-dev/celerix-staffing/pkg/engine"
	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/celerix-dev/celerix-staffing/pkg/schema"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var testSecret = []byte("test-secret")

func setupTestRouter(t *testing.T) (*gin.Engine, *engine.MemStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := engine.NewMemStore(nil, nil)
	logger := logrus.New()
	pub := &events.Recorder{}

	h := &Handler{
		Store:        store,
		Applications: applications.NewService(store, pub, logger, time.UTC),
		Attendance:   attendance.NewService(store, pub, logger, time.UTC, attendance.StaffDefaults{HourlyRate: 1200, SavingsGoal: 50000, CurrentSavings: 15000}),
		Dashboard:    dashboard.NewService(store, time.UTC),
		Logger:       logger,
		Location:     time.UTC,
	}
	return NewRouter(h, testSecret), store
}

func adminToken(t *testing.T) string {
	t.Helper()
	tok, err := IssueToken(testSecret, "ops", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	return tok
}

func do(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func form() map[string]string {
	return map[string]string{
		"name":               "山田 太郎",
		"kana":               "やまだ たろう",
		"phone":              "090-1234-5678",
		"email":              "taro@example.com",
		"address":            "長野県白馬村",
		"work_history":       "ホテル勤務 3年",
		"desired_conditions": "住み込み希望",
	}
}

func TestHealth(t *testing.T) {
	r, _ := setupTestRouter(t)
	w := do(r, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" || w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("Missing CORS or security headers: %v", w.Header())
	}
}

func TestSubmitApplication(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := do(r, "POST", "/api/applications?from_id=camp-2026", "", form())
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var app schema.Application
	json.Unmarshal(w.Body.Bytes(), &app)
	if app.ID == "" || app.FromID != "camp-2026" || app.Status != schema.StatusSubmitted {
		t.Errorf("Unexpected application: %+v", app)
	}
}

func TestSubmitApplication_ValidationErrors(t *testing.T) {
	r, store := setupTestRouter(t)

	body := form()
	body["email"] = "not-an-email"
	w := do(r, "POST", "/api/applications", "", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	var res struct {
		Errors map[string]string `json:"errors"`
	}
	json.Unmarshal(w.Body.Bytes(), &res)
	if res.Errors["from_id"] == "" || res.Errors["email"] != "正しいメールアドレスを入力してください" {
		t.Errorf("Unexpected errors: %v", res.Errors)
	}
	if len(res.Errors) != 2 {
		t.Errorf("Expected 2 field errors, got %v", res.Errors)
	}

	all, _ := store.FindMany(context.Background(), schema.CollectionApplications, recordstore.Query{})
	if len(all) != 0 {
		t.Errorf("Invalid submission was stored")
	}
}

func TestSubmitApplication_InvalidJSON(t *testing.T) {
	r, _ := setupTestRouter(t)
	req, _ := http.NewRequest("POST", "/api/applications", bytes.NewBufferString("invalid"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	r, _ := setupTestRouter(t)

	if w := do(r, "GET", "/api/admin/applications", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}
	if w := do(r, "GET", "/api/admin/applications", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for garbage token, got %d", w.Code)
	}

	staffTok, _ := IssueToken(testSecret, "u1", "staff", time.Hour)
	if w := do(r, "GET", "/api/admin/applications", staffTok, nil); w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-admin, got %d", w.Code)
	}

	otherTok, _ := IssueToken([]byte("other"), "ops", RoleAdmin, time.Hour)
	if w := do(r, "GET", "/api/admin/applications", otherTok, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for foreign signature, got %d", w.Code)
	}

	expired, _ := IssueToken(testSecret, "ops", RoleAdmin, -time.Minute)
	if w := do(r, "GET", "/api/admin/applications", expired, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for expired token, got %d", w.Code)
	}
}

func TestTriageFlow(t *testing.T) {
	r, _ := setupTestRouter(t)
	tok := adminToken(t)

	body := form()
	body["from_id"] = "camp-a"
	var created schema.Application
	json.Unmarshal(do(r, "POST", "/api/applications", "", body).Body.Bytes(), &created)
	body["from_id"] = "camp-b"
	body["name"] = `佐藤 "ハナ" 花子`
	do(r, "POST", "/api/applications", "", body)

	w := do(r, "GET", "/api/admin/applications?from_id=CAMP-A", tok, nil)
	var list []schema.Application
	json.Unmarshal(w.Body.Bytes(), &list)
	if w.Code != http.StatusOK || len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("Unexpected list %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "PATCH", "/api/admin/applications/"+created.ID+"/status", tok, map[string]string{"status": "interview_scheduled"})
	var updated schema.Application
	json.Unmarshal(w.Body.Bytes(), &updated)
	if w.Code != http.StatusOK || updated.Status != schema.StatusInterviewScheduled {
		t.Errorf("Status update failed %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "PATCH", "/api/admin/applications/"+created.ID+"/status", tok, map[string]string{"status": "lost"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown status, got %d", w.Code)
	}

	w = do(r, "PATCH", "/api/admin/applications/"+created.ID+"/handler", tok, map[string]string{"person_in_charge": "佐藤"})
	json.Unmarshal(w.Body.Bytes(), &updated)
	if w.Code != http.StatusOK || updated.Handler() != "佐藤" {
		t.Errorf("Handler update failed %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "PATCH", "/api/admin/applications/"+created.ID+"/interview", tok, map[string]string{"interview_date": "2026-10-20", "interview_time": "14:00"})
	json.Unmarshal(w.Body.Bytes(), &updated)
	if w.Code != http.StatusOK || updated.InterviewDate == nil || *updated.InterviewDate != "2026-10-20" {
		t.Errorf("Interview update failed %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "GET", "/api/admin/applications/"+created.ID, tok, nil)
	json.Unmarshal(w.Body.Bytes(), &updated)
	if w.Code != http.StatusOK || updated.Handler() != "佐藤" || updated.Status != schema.StatusInterviewScheduled {
		t.Errorf("Get returned %d: %s", w.Code, w.Body.String())
	}

	if w := do(r, "GET", "/api/admin/applications/missing", tok, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
	if w := do(r, "PATCH", "/api/admin/applications/missing/status", tok, map[string]string{"status": "hired"}); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on patch, got %d", w.Code)
	}

	w = do(r, "GET", "/api/admin/applications/export", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Export failed %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Disposition"), `attachment; filename="applications_`) {
		t.Errorf("Unexpected disposition %q", w.Header().Get("Content-Disposition"))
	}
	csv := w.Body.String()
	if strings.Count(csv, "\r\n") != 3 || !strings.Contains(csv, `"佐藤 ""ハナ"" 花子"`) {
		t.Errorf("Unexpected export: %q", csv)
	}

	w = do(r, "GET", "/api/admin/applications/export?format=xlsx", tok, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("Content-Type"), "spreadsheetml") {
		t.Errorf("XLSX export failed %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if w := do(r, "GET", "/api/admin/applications/export?format=pdf", tok, nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown format, got %d", w.Code)
	}
}

func seedStaff(t *testing.T, store *engine.MemStore, name, department string) string {
	t.Helper()
	rec, err := store.Insert(context.Background(), schema.CollectionStaff, recordstore.Record{
		"name": name, "employee_id": "E-" + name, "department": department, "position": "スタッフ",
	})
	if err != nil {
		t.Fatal(err)
	}
	return rec.ID()
}

func TestAttendanceFlow(t *testing.T) {
	r, store := setupTestRouter(t)
	id := seedStaff(t, store, "田中", "フロント")
	base := "/api/staff/" + id + "/attendance"

	w := do(r, "GET", base+"/today", "", nil)
	var view attendance.View
	json.Unmarshal(w.Body.Bytes(), &view)
	if w.Code != http.StatusOK || view.State != attendance.StateNotStarted || view.Staff.HourlyRate != 1200 {
		t.Fatalf("Unexpected today %d: %s", w.Code, w.Body.String())
	}

	if w := do(r, "POST", base+"/start-break", "", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for break before clock-in, got %d", w.Code)
	}

	w = do(r, "POST", base+"/clock-in", "", nil)
	json.Unmarshal(w.Body.Bytes(), &view)
	if w.Code != http.StatusOK || view.State != attendance.StateClockedIn || view.Record == nil || view.Record.WorkLocation != "フロント" {
		t.Fatalf("Clock-in failed %d: %s", w.Code, w.Body.String())
	}

	if w := do(r, "POST", base+"/clock-in", "", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for double clock-in, got %d", w.Code)
	}
	if w := do(r, "POST", base+"/teleport", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown action, got %d", w.Code)
	}

	w = do(r, "PUT", base+"/correction", "", map[string]string{"field": "clock_in", "time": "09:00"})
	json.Unmarshal(w.Body.Bytes(), &view)
	if w.Code != http.StatusOK || view.Record.ClockInTime.Format("15:04") != "09:00" {
		t.Errorf("Correction failed %d: %s", w.Code, w.Body.String())
	}
	if w := do(r, "PUT", base+"/correction", "", map[string]string{"field": "lunch", "time": "09:00"}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown field, got %d", w.Code)
	}

	if w := do(r, "GET", "/api/staff/nobody/attendance/today", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown staff, got %d", w.Code)
	}
}

func TestDashboardAndStaff(t *testing.T) {
	r, store := setupTestRouter(t)
	tok := adminToken(t)

	front := seedStaff(t, store, "田中", "フロント")
	kitchen := seedStaff(t, store, "鈴木", "レストラン")
	do(r, "POST", "/api/staff/"+front+"/attendance/clock-in", "", nil)
	do(r, "POST", "/api/staff/"+kitchen+"/attendance/clock-in", "", nil)
	do(r, "POST", "/api/staff/"+kitchen+"/attendance/start-break", "", nil)

	w := do(r, "GET", "/api/admin/attendance/dashboard", tok, nil)
	var d dashboard.Dashboard
	json.Unmarshal(w.Body.Bytes(), &d)
	if w.Code != http.StatusOK || d.Stats.TotalStaff != 2 || d.Stats.ClockedIn != 1 || d.Stats.OnBreak != 1 {
		t.Errorf("Unexpected dashboard %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "GET", "/api/admin/attendance/dashboard?window=week&department=フロント", tok, nil)
	json.Unmarshal(w.Body.Bytes(), &d)
	if w.Code != http.StatusOK || len(d.Rows) != 1 || d.Rows[0].StaffID != front {
		t.Errorf("Unexpected department dashboard %d: %s", w.Code, w.Body.String())
	}

	if w := do(r, "GET", "/api/admin/attendance/dashboard?window=year", tok, nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown window, got %d", w.Code)
	}
	if w := do(r, "GET", "/api/admin/attendance/dashboard?date=16-10-2026", tok, nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad date, got %d", w.Code)
	}

	w = do(r, "GET", "/api/admin/attendance/export", tok, nil)
	if w.Code != http.StatusOK || strings.Count(w.Body.String(), "\r\n") != 3 {
		t.Errorf("Unexpected attendance export %d: %q", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "staff_attendance_"+d.Date+".csv") {
		t.Errorf("Unexpected disposition %q", w.Header().Get("Content-Disposition"))
	}

	w = do(r, "GET", "/api/admin/staff?department=レストラン", tok, nil)
	var staff []schema.Staff
	json.Unmarshal(w.Body.Bytes(), &staff)
	if w.Code != http.StatusOK || len(staff) != 1 || staff[0].ID != kitchen {
		t.Errorf("Unexpected staff list %d: %s", w.Code, w.Body.String())
	}
}
