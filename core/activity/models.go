package activity

import "time"

// Types
const (
	TypeApproveStudent  = "approve_student"
	TypeDeclineStudent  = "decline_student"
	TypeGraduateStudent = "graduate_student"
	TypeDeleteStudent   = "delete_student"
	TypeUpdateStudent   = "update_student"
	TypeRegisterStudent = "register_student"
	TypeImportStudents  = "import_students"
	TypeAttendance      = "attendance"
	TypeResetPassword   = "reset_password"
	TypeRegisterAdmin   = "register_admin"
	TypeUpdateAdmin     = "update_admin"
	TypeToggleAdmin     = "toggle_admin_status"
	TypeDeleteAdmin     = "delete_admin"
	TypePromoteStudent  = "make_student_admin"
	TypeSchedule        = "schedule"
	TypeGallery         = "gallery"
	TypeCleanup         = "cleanup"
)

// Statuses
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

type Entry struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	AdminName string                 `json:"admin_name"`
	Details   map[string]interface{} `json:"details"`
	Time      time.Time              `json:"time"`
	Status    string                 `json:"status"`
}
