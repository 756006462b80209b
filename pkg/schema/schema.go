// Package schema defines the records exchanged between the staffing services
// and the record store. JSON names are the record field names; gorm tags
// describe the tables used by the SQL backend.
package schema

import "time"

// Collection names in the record store.
const (
	CollectionApplications = "applications"
	CollectionStaff        = "staff"
	CollectionAttendances  = "attendances"
)

// Collections lists every collection the system owns, in migration order.
var Collections = []string{CollectionStaff, CollectionApplications, CollectionAttendances}

// DateLayout and TimeOfDayLayout are the wire formats for calendar days and
// manual time corrections.
const (
	DateLayout      = "2006-01-02"
	TimeOfDayLayout = "15:04"
)

// ApplicationStatus is the triage workflow state of an application.
type ApplicationStatus string

const (
	StatusSubmitted          ApplicationStatus = "submitted"
	StatusInterviewScheduled ApplicationStatus = "interview_scheduled"
	StatusInterviewed        ApplicationStatus = "interviewed"
	StatusHired              ApplicationStatus = "hired"
	StatusRejected           ApplicationStatus = "rejected"
	StatusWithdrawn          ApplicationStatus = "withdrawn"
)

var applicationStatusLabels = map[ApplicationStatus]string{
	StatusSubmitted:          "応募済み",
	StatusInterviewScheduled: "面接予定",
	StatusInterviewed:        "面接済み",
	StatusHired:              "採用",
	StatusRejected:           "不採用",
	StatusWithdrawn:          "辞退",
}

// ApplicationStatuses lists the workflow states in display order.
var ApplicationStatuses = []ApplicationStatus{
	StatusSubmitted, StatusInterviewScheduled, StatusInterviewed,
	StatusHired, StatusRejected, StatusWithdrawn,
}

// Valid reports whether s is one of the fixed workflow states.
func (s ApplicationStatus) Valid() bool {
	_, ok := applicationStatusLabels[s]
	return ok
}

// Label returns the display label used in exports.
func (s ApplicationStatus) Label() string {
	if l, ok := applicationStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Application is a job application submitted through the public form.
type Application struct {
	ID                string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	FromID            string            `json:"from_id" gorm:"index;type:varchar(64)"`
	Name              string            `json:"name"`
	Kana              string            `json:"kana"`
	Phone             string            `json:"phone"`
	Email             string            `json:"email"`
	Address           string            `json:"address"`
	WorkHistory       string            `json:"work_history"`
	DesiredConditions string            `json:"desired_conditions"`
	Status            ApplicationStatus `json:"status" gorm:"index;type:varchar(32)"`
	PersonInCharge    *string           `json:"person_in_charge"`
	InterviewDate     *string           `json:"interview_date" gorm:"type:varchar(10)"`
	InterviewTime     *string           `json:"interview_time" gorm:"type:varchar(5)"`
	InterviewLocation *string           `json:"interview_location"`
	InterviewNotes    *string           `json:"interview_notes"`
	CreatedAt         time.Time         `json:"created_at" gorm:"index;type:varchar(40)"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"type:varchar(40)"`
}

func (Application) TableName() string { return CollectionApplications }

// Handler returns the assigned person in charge, or "".
func (a Application) Handler() string {
	if a.PersonInCharge == nil {
		return ""
	}
	return *a.PersonInCharge
}

// Departments is the fixed set of resort departments.
var Departments = []string{"フロント", "レストラン", "ハウスキーピング", "メンテナンス", "管理事務所"}

// ValidDepartment reports whether d is one of Departments.
func ValidDepartment(d string) bool {
	for _, dep := range Departments {
		if dep == d {
			return true
		}
	}
	return false
}

// Staff is a member of the staff master. It is maintained by roster imports,
// never through the HTTP API.
type Staff struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name           string    `json:"name"`
	EmployeeID     string    `json:"employee_id" gorm:"index;type:varchar(32)"`
	Department     string    `json:"department" gorm:"index"`
	Position       string    `json:"position"`
	HourlyRate     int64     `json:"hourly_rate"`
	SavingsGoal    int64     `json:"savings_goal"`
	CurrentSavings int64     `json:"current_savings"`
	CreatedAt      time.Time `json:"created_at" gorm:"type:varchar(40)"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"type:varchar(40)"`
}

func (Staff) TableName() string { return CollectionStaff }

// AttendanceStatus is the stored status of a day's attendance record.
type AttendanceStatus string

const (
	AttendanceClockedIn  AttendanceStatus = "clocked_in"
	AttendanceOnBreak    AttendanceStatus = "on_break"
	AttendanceClockedOut AttendanceStatus = "clocked_out"
)

// Label returns the display label used in exports.
func (s AttendanceStatus) Label() string {
	switch s {
	case AttendanceClockedIn:
		return "出勤中"
	case AttendanceOnBreak:
		return "休憩中"
	default:
		return "退勤済み"
	}
}

// AttendanceRecord is one staff member's attendance for one calendar day.
type AttendanceRecord struct {
	ID             string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	StaffID        string           `json:"staff_id" gorm:"index:idx_attendance_staff_date;type:varchar(36)"`
	StaffName      string           `json:"staff_name"`
	Date           string           `json:"date" gorm:"index:idx_attendance_staff_date;type:varchar(10)"`
	ClockInTime    *time.Time       `json:"clock_in_time" gorm:"type:varchar(40)"`
	ClockOutTime   *time.Time       `json:"clock_out_time" gorm:"type:varchar(40)"`
	BreakStartTime *time.Time       `json:"break_start_time" gorm:"type:varchar(40)"`
	BreakEndTime   *time.Time       `json:"break_end_time" gorm:"type:varchar(40)"`
	WorkLocation   string           `json:"work_location"`
	Notes          string           `json:"notes"`
	Status         AttendanceStatus `json:"status" gorm:"type:varchar(16)"`
	CreatedAt      time.Time        `json:"created_at" gorm:"index;type:varchar(40)"`
	UpdatedAt      time.Time        `json:"updated_at" gorm:"type:varchar(40)"`
}

func (AttendanceRecord) TableName() string { return CollectionAttendances }
