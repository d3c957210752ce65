package student

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Statuses
const (
	StatusPending   = "Pending"
	StatusStudent   = "Student"
	StatusGraduated = "Graduated"
)

var allStatuses = []string{StatusPending, StatusStudent, StatusGraduated}

func validStatus(s string) bool {
	for _, st := range allStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Columns
const (
	ColID               = "id"
	ColUserID           = "user_id"
	ColFullName         = "full_name"
	ColChristianName    = "christian_name"
	ColGender           = "gender"
	ColBirthDate        = "birth_date"
	ColPhone            = "phone"
	ColEmail            = "email"
	ColDepartment       = "department"
	ColBatch            = "batch"
	ColMotherChurch     = "mother_church"
	ColRegion           = "region"
	ColZone             = "zone"
	ColWoreda           = "woreda"
	ColEmergencyContact = "emergency_contact"
	ColPhotoURL         = "photo_url"
	ColServiceSection   = "service_section"
	ColStatus           = "status"
	ColVerifiedBy       = "verified_by"
	ColFilledBy         = "filled_by"
	ColSchoolInfo       = "school_info"
	ColUpdatedAt        = "updated_at"
)

// SchoolInfo holds the free-form academic data of a student (gpa, attendance, participation...).
type SchoolInfo map[string]interface{}

func (si SchoolInfo) Value() (driver.Value, error) {
	if si == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(si)
}

func (si *SchoolInfo) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*si = SchoolInfo{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("cannot scan %T into SchoolInfo", src)
	}
	info := SchoolInfo{}
	if err := json.Unmarshal(data, &info); err != nil {
		return errors.Wrap(err, "decoding school_info")
	}
	*si = info
	return nil
}

// merge copies every key of other into a copy of si; other wins.
func (si SchoolInfo) merge(other SchoolInfo) SchoolInfo {
	res := make(SchoolInfo, len(si)+len(other))
	for k, v := range si {
		res[k] = v
	}
	for k, v := range other {
		res[k] = v
	}
	return res
}

type Student struct {
	ID               string     `json:"id"`
	UserID           *int       `json:"user_id"`
	FullName         string     `json:"full_name"`
	ChristianName    string     `json:"christian_name"`
	Gender           string     `json:"gender"`
	BirthDate        string     `json:"birth_date"`
	Phone            string     `json:"phone"`
	Email            string     `json:"email"`
	Department       string     `json:"department"`
	Batch            string     `json:"batch"`
	MotherChurch     string     `json:"mother_church"`
	Region           string     `json:"region"`
	Zone             string     `json:"zone"`
	Woreda           string     `json:"woreda"`
	EmergencyContact string     `json:"emergency_contact"`
	PhotoURL         string     `json:"photo_url"`
	ServiceSection   string     `json:"service_section"`
	Status           string     `json:"status"`
	VerifiedBy       string     `json:"verified_by"`
	FilledBy         string     `json:"filled_by"`
	SchoolInfo       SchoolInfo `json:"school_info"`
	CreatedAt        time.Time  `json:"created_at"` // UTC
	UpdatedAt        time.Time  `json:"updated_at"` // UTC
}

// IsClaimed reports whether the student has been assigned a service section.
func (s *Student) IsClaimed() bool { return s.ServiceSection != "" }

// IsPlaceholder reports whether the row was created at signup and never filled in.
func (s *Student) IsPlaceholder() bool { return s.FilledBy == "" }

func (s *Student) stringField(col string) *string {
	switch col {
	case ColID:
		return &s.ID
	case ColFullName:
		return &s.FullName
	case ColChristianName:
		return &s.ChristianName
	case ColGender:
		return &s.Gender
	case ColBirthDate:
		return &s.BirthDate
	case ColPhone:
		return &s.Phone
	case ColEmail:
		return &s.Email
	case ColDepartment:
		return &s.Department
	case ColBatch:
		return &s.Batch
	case ColMotherChurch:
		return &s.MotherChurch
	case ColRegion:
		return &s.Region
	case ColZone:
		return &s.Zone
	case ColWoreda:
		return &s.Woreda
	case ColEmergencyContact:
		return &s.EmergencyContact
	case ColPhotoURL:
		return &s.PhotoURL
	case ColServiceSection:
		return &s.ServiceSection
	case ColStatus:
		return &s.Status
	case ColVerifiedBy:
		return &s.VerifiedBy
	case ColFilledBy:
		return &s.FilledBy
	}
	return nil
}

// ApplyFields sets the given columns on s. Unknown columns are ignored.
func (s *Student) ApplyFields(fields map[string]interface{}) {
	for col, val := range fields {
		switch v := val.(type) {
		case string:
			if f := s.stringField(col); f != nil {
				*f = v
			}
		case SchoolInfo:
			if col == ColSchoolInfo {
				s.SchoolInfo = v
			}
		case time.Time:
			if col == ColUpdatedAt {
				s.UpdatedAt = v
			}
		}
	}
}

// Record is a canonicalized student payload. Nil fields were not supplied.
type Record struct {
	ID               *string
	FullName         *string
	ChristianName    *string
	Gender           *string
	BirthDate        *string
	Phone            *string
	Email            *string
	Department       *string
	Batch            *string
	MotherChurch     *string
	Region           *string
	Zone             *string
	Woreda           *string
	EmergencyContact *string
	PhotoURL         *string
	ServiceSection   *string
	Status           *string
	SchoolInfo       SchoolInfo // nil when not supplied
}

func (r *Record) field(col string) **string {
	switch col {
	case ColID:
		return &r.ID
	case ColFullName:
		return &r.FullName
	case ColChristianName:
		return &r.ChristianName
	case ColGender:
		return &r.Gender
	case ColBirthDate:
		return &r.BirthDate
	case ColPhone:
		return &r.Phone
	case ColEmail:
		return &r.Email
	case ColDepartment:
		return &r.Department
	case ColBatch:
		return &r.Batch
	case ColMotherChurch:
		return &r.MotherChurch
	case ColRegion:
		return &r.Region
	case ColZone:
		return &r.Zone
	case ColWoreda:
		return &r.Woreda
	case ColEmergencyContact:
		return &r.EmergencyContact
	case ColPhotoURL:
		return &r.PhotoURL
	case ColServiceSection:
		return &r.ServiceSection
	case ColStatus:
		return &r.Status
	}
	return nil
}

// Fields returns the supplied columns and their values, id excluded.
func (r *Record) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	for _, col := range profileColumns {
		if p := *r.field(col); p != nil {
			fields[col] = *p
		}
	}
	if r.Status != nil {
		fields[ColStatus] = *r.Status
	}
	if r.SchoolInfo != nil {
		fields[ColSchoolInfo] = r.SchoolInfo
	}
	return fields
}

func (r *Record) str(col string) string {
	if p := *r.field(col); p != nil {
		return *p
	}
	return ""
}

// profileColumns are the columns a student payload may set, id and status aside.
var profileColumns = []string{
	ColFullName, ColChristianName, ColGender, ColBirthDate, ColPhone, ColEmail, ColDepartment, ColBatch,
	ColMotherChurch, ColRegion, ColZone, ColWoreda, ColEmergencyContact, ColPhotoURL, ColServiceSection,
}

// Payload is a loosely-typed student payload as sent by clients.
type Payload map[string]interface{}

type QueryFilter struct {
	Section          string // case/whitespace-insensitive
	IncludeUnclaimed bool   // with Section: also return students without a section
	UnclaimedOnly    bool   // without Section: only return students without a section
	Status           string
	Search           string // matches id, full name or phone
}
