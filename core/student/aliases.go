package student

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/gibigubae/registry/core"
	"github.com/pkg/errors"
)

type fieldAlias struct {
	column  string
	aliases []string // in order of preference
}

type aliasTable struct {
	fields     []fieldAlias
	school     []fieldAlias // flattened school_info keys
	nestedKeys []string     // keys holding the nested school_info object
}

// registerAliases is consulted by Register.
var registerAliases = aliasTable{
	fields: []fieldAlias{
		{ColID, []string{"id", "studentId", "student_id"}},
		{ColFullName, []string{"fullName", "full_name", "name"}},
		{ColChristianName, []string{"christianName", "christian_name", "baptismalName"}},
		{ColGender, []string{"gender", "sex"}},
		{ColBirthDate, []string{"birthYear", "birthDate", "birth_date", "birth_year"}},
		{ColPhone, []string{"phone", "phoneNumber", "phone_number"}},
		{ColEmail, []string{"email"}},
		{ColDepartment, []string{"department", "dept"}},
		{ColBatch, []string{"batch", "academicYear", "year"}},
		{ColMotherChurch, []string{"motherChurch", "mother_church", "parish"}},
		{ColRegion, []string{"region"}},
		{ColZone, []string{"zone"}},
		{ColWoreda, []string{"woreda"}},
		{ColEmergencyContact, []string{"emergencyContact", "emergency_contact", "emergencyPhone"}},
		{ColPhotoURL, []string{"photoUrl", "photo_url", "photo"}},
		{ColServiceSection, []string{"serviceSection", "service_section", "section"}},
	},
	school:     schoolAliases,
	nestedKeys: []string{"schoolInfo", "school_info"},
}

// updateAliases is consulted by Update.
var updateAliases = aliasTable{
	fields: []fieldAlias{
		{ColFullName, []string{"fullName"}},
		{ColChristianName, []string{"christianName"}},
		{ColGender, []string{"gender"}},
		{ColBirthDate, []string{"birthDate", "birthYear"}},
		{ColPhone, []string{"phone"}},
		{ColEmail, []string{"email"}},
		{ColDepartment, []string{"department"}},
		{ColBatch, []string{"batch"}},
		{ColMotherChurch, []string{"motherChurch"}},
		{ColRegion, []string{"region"}},
		{ColZone, []string{"zone"}},
		{ColWoreda, []string{"woreda"}},
		{ColEmergencyContact, []string{"emergencyContact"}},
		{ColPhotoURL, []string{"photoUrl"}},
		{ColServiceSection, []string{"serviceSection"}},
	},
	school:     schoolAliases,
	nestedKeys: []string{"schoolInfo"},
}

// importAliases is consulted by Import; it accepts spreadsheet style headers.
var importAliases = aliasTable{
	fields: []fieldAlias{
		{ColID, []string{"id", "ID", "studentId", "Student ID"}},
		{ColFullName, []string{"fullName", "full_name", "name", "Full Name"}},
		{ColChristianName, []string{"christianName", "Christian Name"}},
		{ColGender, []string{"gender", "Gender"}},
		{ColBirthDate, []string{"birthYear", "birthDate", "Birth Year"}},
		{ColPhone, []string{"phone", "Phone"}},
		{ColEmail, []string{"email", "Email"}},
		{ColDepartment, []string{"department", "Department"}},
		{ColBatch, []string{"batch", "Batch"}},
		{ColServiceSection, []string{"serviceSection", "section", "Section"}},
		{ColStatus, []string{"status", "Status"}},
	},
	school:     schoolAliases,
	nestedKeys: []string{"schoolInfo", "school_info"},
}

var schoolAliases = []fieldAlias{
	{"gpa", []string{"gpa", "GPA"}},
	{"attendance", []string{"attendance"}},
	{"participation", []string{"participation"}},
	{"education_level", []string{"educationLevel", "education_level"}},
	{"remark", []string{"remark", "remarks"}},
}

var yearOnly = regexp.MustCompile(`^\d{4}$`)

// NormalizeBirthDate expands a year-only value to YYYY-01-01 and drops any time part.
func NormalizeBirthDate(s string) (string, error) {
	s = core.CleanString(s)
	switch {
	case s == "":
		return "", nil
	case yearOnly.MatchString(s):
		return s + "-01-01", nil
	case len(s) >= len(core.DateLayout):
		if _, err := time.Parse(core.DateLayout, s[:len(core.DateLayout)]); err == nil {
			return s[:len(core.DateLayout)], nil
		}
	}
	return "", errors.Errorf("%q is neither a year nor a YYYY-MM-DD date", s)
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return core.CleanString(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

func (t aliasTable) known() map[string]bool {
	known := make(map[string]bool)
	for _, f := range t.fields {
		for _, a := range f.aliases {
			known[a] = true
		}
	}
	for _, f := range t.school {
		for _, a := range f.aliases {
			known[a] = true
		}
	}
	for _, k := range t.nestedKeys {
		known[k] = true
	}
	return known
}

// pick returns the value of the first alias present in payload.
func pick(payload Payload, aliases []string) (interface{}, bool) {
	for _, a := range aliases {
		if v, ok := payload[a]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (t aliasTable) canonicalSchoolKey(key string) string {
	for _, f := range t.school {
		for _, a := range f.aliases {
			if a == key {
				return f.column
			}
		}
	}
	return key
}

func (t aliasTable) schoolInfo(payload Payload) (SchoolInfo, error) {
	var info SchoolInfo
	for _, f := range t.school {
		if v, ok := pick(payload, f.aliases); ok {
			if info == nil {
				info = SchoolInfo{}
			}
			info[f.column] = v
		}
	}

	nestedVal, ok := pick(payload, t.nestedKeys)
	if !ok {
		return info, nil
	}
	var nested map[string]interface{}
	switch v := nestedVal.(type) {
	case map[string]interface{}:
		nested = v
	case string:
		if core.CleanString(v) == "" {
			return info, nil
		}
		if err := json.Unmarshal([]byte(v), &nested); err != nil {
			return nil, errors.New("school_info must be an object")
		}
	default:
		return nil, errors.New("school_info must be an object")
	}
	if info == nil {
		info = SchoolInfo{}
	}
	for k, v := range nested {
		info[t.canonicalSchoolKey(k)] = v
	}
	return info, nil
}

// Canonicalize maps payload onto a Record through the alias table.
// Unknown keys are rejected, all of them being reported at once.
func (t aliasTable) Canonicalize(payload Payload) (Record, error) {
	var fieldErrs []core.FieldError

	known := t.known()
	var unknown []string
	for k := range payload {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		fieldErrs = append(fieldErrs, core.FieldError{Field: k, Error: "unknown field"})
	}

	var rec Record
	for _, f := range t.fields {
		v, ok := pick(payload, f.aliases)
		if !ok {
			continue
		}
		s := stringify(v)
		switch f.column {
		case ColBirthDate:
			norm, err := NormalizeBirthDate(s)
			if err != nil {
				fieldErrs = append(fieldErrs, core.FieldError{Field: f.column, Error: err.Error()})
				continue
			}
			s = norm
		case ColEmail:
			if s != "" {
				if _, err := mail.ParseAddress(s); err != nil {
					fieldErrs = append(fieldErrs, core.FieldError{Field: f.column, Error: "invalid email address"})
					continue
				}
			}
		case ColStatus:
			if s != "" && !validStatus(s) {
				fieldErrs = append(fieldErrs, core.FieldError{Field: f.column, Error: "invalid status"})
				continue
			}
		case ColFullName, ColChristianName:
			s = core.Sanitize(s)
		}
		val := s
		*rec.field(f.column) = &val
	}

	info, err := t.schoolInfo(payload)
	if err != nil {
		fieldErrs = append(fieldErrs, core.FieldError{Field: ColSchoolInfo, Error: err.Error()})
	}
	rec.SchoolInfo = info

	if len(fieldErrs) > 0 {
		return Record{}, core.NewValidationError(nil, fieldErrs...)
	}
	return rec, nil
}
