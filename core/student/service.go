package student

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/activity"
	"github.com/gibigubae/registry/core/media"
	"github.com/gibigubae/registry/core/notification"
	"github.com/gibigubae/registry/core/user"
)

const (
	photoMaxDim = 512

	// filler of records submitted without an account
	anonymousFiller = "self"
)

var (
	ErrNotFound         = core.NewNotFoundError("student not found")
	ErrStudentExists    = errors.New("a student with this id is already registered")
	errOtherSection     = core.NewForbiddenError("this student belongs to another section")
	errStaffOnly        = core.NewForbiddenError("only admins can do this")
	errManagerOnly      = core.NewForbiddenError("only the manager can do this")
	errSectionLocked    = core.FieldError{Field: ColServiceSection, Error: "the service section cannot be changed once assigned"}
	errFullNameRequired = core.FieldError{Field: ColFullName, Error: "this field is required"}
	errIDRequired       = core.FieldError{Field: ColID, Error: "this field is required"}
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		// GetStudent looks the student up by id, case-insensitively.
		GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error)
		GetStudentByUserID(ctx context.Context, userID int, exec ...core.DBExecutor) (Student, error)
		QueryStudents(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Student, error)
		// UpdateFields sets the given columns and returns the updated row, ErrNotFound when no row matched.
		UpdateFields(ctx context.Context, id string, fields map[string]interface{}, exec ...core.DBExecutor) (Student, error)
		// UpsertImported inserts s or, when the id exists, overwrites its profile columns only:
		// status, verification and filler stamps are kept and an existing user link wins.
		UpsertImported(ctx context.Context, s Student, exec ...core.DBExecutor) error
		DeleteStudent(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service struct {
		tx       core.TxRunner
		repo     Repository
		users    user.Repository
		notifier notification.Notifier
		recorder activity.Recorder
		mailSvc  core.EmailService
		logger   core.Logger
		conf     *core.Config
	}
)

var _ user.PlaceholderCreator = (*Service)(nil)

func NewService(
	tx core.TxRunner,
	repo Repository,
	users user.Repository,
	notifier notification.Notifier,
	recorder activity.Recorder,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		tx:       tx,
		repo:     repo,
		users:    users,
		notifier: notifier,
		recorder: recorder,
		mailSvc:  mailSvc,
		logger:   logger,
		conf:     conf,
	}
}

// CreatePlaceholder files the empty Pending record of a new signup.
func (svc *Service) CreatePlaceholder(ctx context.Context, studentID string, userID int, fullName string, exec ...core.DBExecutor) error {
	now := time.Now().UTC()
	_, err := svc.repo.CreateStudent(ctx, Student{
		ID:         studentID,
		UserID:     &userID,
		FullName:   fullName,
		Status:     StatusPending,
		SchoolInfo: SchoolInfo{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}, exec...)
	return err
}

func authorize(actor core.Actor, s Student) error {
	if !actor.CanManageSection(s.ServiceSection) {
		return errOtherSection
	}
	return nil
}

func (svc *Service) normalizePhoto(rec *Record) error {
	if rec.PhotoURL == nil {
		return nil
	}
	photo, err := media.NormalizeDataURL(*rec.PhotoURL, photoMaxDim, svc.conf.GalleryMaxBytes)
	if err != nil {
		return err
	}
	rec.PhotoURL = &photo
	return nil
}

// checkSectionChange validates a change of service section requested by actor (nil when anonymous).
func checkSectionChange(actor *core.Actor, current string, rec Record) error {
	if rec.ServiceSection == nil || strings.EqualFold(*rec.ServiceSection, current) {
		return nil
	}
	if actor != nil && actor.IsStaff() {
		if !actor.CanManageSection(*rec.ServiceSection) {
			return core.NewForbiddenError("cannot assign a student to another section")
		}
		return nil
	}
	if current != "" {
		return core.NewValidationError(nil, errSectionLocked)
	}
	return nil
}

func (svc *Service) ownRecord(ctx context.Context, actor core.Actor) (Student, bool, error) {
	s, err := svc.repo.GetStudentByUserID(ctx, actor.ID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Student{}, false, nil
		}
		return Student{}, false, errors.Wrap(err, "finding student by user")
	}
	return s, true, nil
}

// Register files or completes a student registration from a loosely-typed payload.
// A student actor always targets their own record; staff and anonymous callers target the supplied id.
// Anonymous callers can only create new records.
func (svc *Service) Register(ctx context.Context, payload Payload, actor *core.Actor) (Student, error) {
	rec, err := registerAliases.Canonicalize(payload)
	if err != nil {
		return Student{}, err
	}
	if err = svc.normalizePhoto(&rec); err != nil {
		return Student{}, err
	}

	var (
		existing Student
		found    bool
		id       = rec.str(ColID)
	)
	switch {
	case actor != nil && actor.IsStudent():
		if existing, found, err = svc.ownRecord(ctx, *actor); err != nil {
			return Student{}, err
		}
		if found {
			id = existing.ID
		} else if actor.StudentID != "" {
			id = actor.StudentID
		}
		if id == "" {
			return Student{}, core.NewValidationError(nil, errIDRequired)
		}
		if sup := rec.str(ColID); sup != "" && !strings.EqualFold(sup, id) {
			return Student{}, core.NewForbiddenError("students can only register themselves")
		}
	default:
		if id == "" {
			return Student{}, core.NewValidationError(nil, errIDRequired)
		}
		existing, err = svc.repo.GetStudent(ctx, id)
		switch {
		case err == nil:
			found = true
		case errors.Cause(err) != ErrNotFound:
			return Student{}, errors.Wrap(err, "finding student")
		}
		if found && actor == nil {
			return Student{}, core.NewValidationError(ErrStudentExists, core.FieldError{Field: ColID, Error: ErrStudentExists.Error()})
		}
	}

	filler := anonymousFiller
	if actor != nil {
		filler = actor.Username
	}

	if found {
		if actor.IsStaff() {
			if err = authorize(*actor, existing); err != nil {
				return Student{}, err
			}
		}
		if err = checkSectionChange(actor, existing.ServiceSection, rec); err != nil {
			return Student{}, err
		}
		return svc.completeRegistration(ctx, existing, rec, *actor, filler)
	}

	if err = checkSectionChange(actor, "", rec); err != nil {
		return Student{}, err
	}
	if rec.str(ColFullName) == "" {
		return Student{}, core.NewValidationError(nil, errFullNameRequired)
	}

	now := time.Now().UTC()
	s := Student{
		ID:         id,
		Status:     StatusPending,
		FilledBy:   filler,
		SchoolInfo: SchoolInfo{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.ApplyFields(rec.Fields())
	if s.SchoolInfo == nil {
		s.SchoolInfo = SchoolInfo{}
	}
	if actor != nil && actor.IsStudent() {
		uid := actor.ID
		s.UserID = &uid
	}
	if s, err = svc.repo.CreateStudent(ctx, s); err != nil {
		return Student{}, errors.Wrap(err, "creating student")
	}

	from := filler
	svc.notifier.Notify(ctx, notification.TypeRegistration,
		fmt.Sprintf("New registration: %s (%s)", s.FullName, s.ID), s.ServiceSection, from)
	if actor != nil && actor.IsStaff() {
		svc.recorder.Record(ctx, activity.TypeRegisterStudent, actor.DisplayName(), activity.StatusSuccess,
			map[string]interface{}{"student_id": s.ID, "section": s.ServiceSection})
	}
	return s, nil
}

func (svc *Service) completeRegistration(ctx context.Context, existing Student, rec Record, actor core.Actor, filler string) (Student, error) {
	fields := rec.Fields()
	if name, ok := fields[ColFullName]; ok && name == "" {
		return Student{}, core.NewValidationError(nil, errFullNameRequired)
	}
	if rec.SchoolInfo != nil {
		fields[ColSchoolInfo] = existing.SchoolInfo.merge(rec.SchoolInfo)
	}
	fields[ColFilledBy] = filler
	fields[ColUpdatedAt] = time.Now().UTC()

	s, err := svc.repo.UpdateFields(ctx, existing.ID, fields)
	if err != nil {
		return Student{}, err
	}

	typ, msg := notification.TypeUpdate, fmt.Sprintf("Registration of %s (%s) was updated", s.FullName, s.ID)
	if existing.IsPlaceholder() {
		typ, msg = notification.TypeRegistration, fmt.Sprintf("New registration: %s (%s)", s.FullName, s.ID)
	}
	svc.notifier.Notify(ctx, typ, msg, s.ServiceSection, actor.Username)
	if actor.IsStaff() {
		svc.recorder.Record(ctx, activity.TypeUpdateStudent, actor.DisplayName(), activity.StatusSuccess,
			map[string]interface{}{"student_id": s.ID, "fields": len(fields)})
	}
	return s, nil
}

// Update applies a partial update through the update alias table.
func (svc *Service) Update(ctx context.Context, id string, payload Payload, actor core.Actor) (Student, error) {
	rec, err := updateAliases.Canonicalize(payload)
	if err != nil {
		return Student{}, err
	}
	if err = svc.normalizePhoto(&rec); err != nil {
		return Student{}, err
	}

	existing, err := svc.repo.GetStudent(ctx, core.CleanString(id))
	if err != nil {
		return Student{}, err
	}
	switch {
	case actor.IsStaff():
		if err = authorize(actor, existing); err != nil {
			return Student{}, err
		}
	case existing.UserID == nil || *existing.UserID != actor.ID:
		return Student{}, core.NewForbiddenError("permission denied")
	}
	if err = checkSectionChange(&actor, existing.ServiceSection, rec); err != nil {
		return Student{}, err
	}

	fields := rec.Fields()
	if len(fields) == 0 {
		return Student{}, core.NewValidationError(errors.New("nothing to update"))
	}
	if name, ok := fields[ColFullName]; ok && name == "" {
		return Student{}, core.NewValidationError(nil, errFullNameRequired)
	}
	if rec.SchoolInfo != nil {
		fields[ColSchoolInfo] = existing.SchoolInfo.merge(rec.SchoolInfo)
	}
	if existing.IsPlaceholder() {
		fields[ColFilledBy] = actor.Username
	}
	fields[ColUpdatedAt] = time.Now().UTC()

	s, err := svc.repo.UpdateFields(ctx, existing.ID, fields)
	if err != nil {
		return Student{}, err
	}

	svc.notifier.Notify(ctx, notification.TypeUpdate,
		fmt.Sprintf("%s (%s) was updated by %s", s.FullName, s.ID, actor.DisplayName()), s.ServiceSection, actor.Username)
	if actor.IsStaff() {
		svc.recorder.Record(ctx, activity.TypeUpdateStudent, actor.DisplayName(), activity.StatusSuccess,
			map[string]interface{}{"student_id": s.ID, "fields": len(fields)})
	}
	return s, nil
}

// Import upserts every row independently, each in its own transaction.
func (svc *Service) Import(ctx context.Context, rows []Payload, actor core.Actor) (core.BatchResult[Payload], error) {
	var res core.BatchResult[Payload]
	if !actor.IsStaff() {
		return res, errStaffOnly
	}

	// every account created by the import shares the default password
	var pwdHash []byte
	hashDefault := func() ([]byte, error) {
		if pwdHash == nil {
			var usr user.User
			if err := usr.SetPassword(svc.conf.DefaultPassword); err != nil {
				return nil, err
			}
			pwdHash = usr.PasswordHash
		}
		return pwdHash, nil
	}

	for i, row := range rows {
		if err := svc.importRow(ctx, row, actor, hashDefault); err != nil {
			res.Fail(row, errors.Wrapf(err, "row %d", i+1))
			continue
		}
		res.Succeed(row)
	}

	status := activity.StatusSuccess
	switch {
	case res.SuccessCount() == 0 && res.FailedCount() > 0:
		status = activity.StatusFailed
	case res.FailedCount() > 0:
		status = activity.StatusPartial
	}
	if res.SuccessCount() > 0 {
		svc.notifier.Notify(ctx, notification.TypeImport,
			fmt.Sprintf("%d students imported by %s (%d failed)", res.SuccessCount(), actor.DisplayName(), res.FailedCount()),
			actor.Section, actor.Username)
	}
	svc.recorder.Record(ctx, activity.TypeImportStudents, actor.DisplayName(), status,
		map[string]interface{}{"success": res.SuccessCount(), "failed": res.FailedCount(), "errors": res.Errors()})
	return res, nil
}

func (svc *Service) importRow(ctx context.Context, row Payload, actor core.Actor, hashDefault func() ([]byte, error)) error {
	rec, err := importAliases.Canonicalize(row)
	if err != nil {
		return err
	}
	id := rec.str(ColID)
	if id == "" {
		return core.NewValidationError(nil, errIDRequired)
	}
	if rec.str(ColFullName) == "" {
		return core.NewValidationError(nil, errFullNameRequired)
	}
	if !actor.CanManageSection(rec.str(ColServiceSection)) {
		return core.NewForbiddenError("cannot import students of another section")
	}

	now := time.Now().UTC()
	s := Student{
		ID:         id,
		Status:     StatusStudent,
		VerifiedBy: actor.DisplayName(),
		FilledBy:   actor.Username,
		SchoolInfo: SchoolInfo{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.ApplyFields(rec.Fields())
	if s.SchoolInfo == nil {
		s.SchoolInfo = SchoolInfo{}
	}

	return svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		// ids are unique case-insensitively: reuse the stored spelling
		if existing, err := svc.repo.GetStudent(ctx, s.ID, exec); err == nil {
			if err = authorize(actor, existing); err != nil {
				return err
			}
			if err = checkSectionChange(&actor, existing.ServiceSection, rec); err != nil {
				return err
			}
			s.ID = existing.ID
		} else if errors.Cause(err) != ErrNotFound {
			return errors.Wrap(err, "finding student")
		}

		usr, err := svc.accountFor(ctx, s, hashDefault, exec)
		if err != nil {
			return err
		}
		if usr.ID != 0 {
			s.UserID = &usr.ID
		}
		return errors.Wrap(svc.repo.UpsertImported(ctx, s, exec), "upserting student")
	})
}

// accountFor finds the student account of an imported row, creating it when missing.
// The zero User is returned when the matching username belongs to staff.
func (svc *Service) accountFor(ctx context.Context, s Student, hashDefault func() ([]byte, error), exec core.DBExecutor) (user.User, error) {
	usr, err := svc.users.GetUser(ctx, user.GetFilter{StudentID: s.ID}, exec)
	if err == nil {
		return usr, nil
	} else if errors.Cause(err) != user.ErrNotFound {
		return user.User{}, errors.Wrap(err, "finding user by student id")
	}

	uname := strings.ToLower(s.ID)
	usr, err = svc.users.GetUser(ctx, user.GetFilter{Username: uname}, exec)
	if err == nil {
		if !usr.IsStudent() {
			return user.User{}, nil
		}
		return usr, nil
	} else if errors.Cause(err) != user.ErrNotFound {
		return user.User{}, errors.Wrap(err, "finding user by username")
	}

	hash, err := hashDefault()
	if err != nil {
		return user.User{}, errors.Wrap(err, "hashing password")
	}
	now := time.Now().UTC()
	usr, err = svc.users.CreateUser(ctx, user.User{
		Username:           uname,
		Name:               s.FullName,
		Role:               core.RoleStudent,
		Section:            s.ServiceSection,
		Status:             user.StatusActive,
		MustChangePassword: true,
		StudentID:          s.ID,
		PasswordHash:       hash,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, exec)
	return usr, errors.Wrap(err, "creating user")
}

// Approve accepts a pending student. An admin approving an unclaimed student claims them for their section.
func (svc *Service) Approve(ctx context.Context, id string, actor core.Actor) (Student, error) {
	existing, err := svc.repo.GetStudent(ctx, core.CleanString(id))
	if err != nil {
		return Student{}, err
	}
	if err = authorize(actor, existing); err != nil {
		return Student{}, err
	}

	fields := map[string]interface{}{
		ColStatus:     StatusStudent,
		ColVerifiedBy: actor.DisplayName(),
		ColUpdatedAt:  time.Now().UTC(),
	}
	if !existing.IsClaimed() && actor.Section != "" {
		fields[ColServiceSection] = actor.Section
	}
	s, err := svc.repo.UpdateFields(ctx, existing.ID, fields)
	if err != nil {
		return Student{}, err
	}

	svc.notifier.Notify(ctx, notification.TypeApproval,
		fmt.Sprintf("%s (%s) was approved by %s", s.FullName, s.ID, actor.DisplayName()), s.ServiceSection, actor.Username)
	svc.recorder.Record(ctx, activity.TypeApproveStudent, actor.DisplayName(), activity.StatusSuccess,
		map[string]interface{}{"student_id": s.ID, "section": s.ServiceSection})
	svc.sendStatusEmail(s, "Your registration was approved", "student_approved", actor)
	return s, nil
}

// Decline deletes a registration.
func (svc *Service) Decline(ctx context.Context, id string, actor core.Actor) error {
	existing, err := svc.repo.GetStudent(ctx, core.CleanString(id))
	if err != nil {
		return err
	}
	if err = authorize(actor, existing); err != nil {
		return err
	}
	if err = svc.repo.DeleteStudent(ctx, existing.ID); err != nil {
		return err
	}

	svc.notifier.Notify(ctx, notification.TypeDecline,
		fmt.Sprintf("Registration of %s (%s) was declined by %s", existing.FullName, existing.ID, actor.DisplayName()),
		existing.ServiceSection, actor.Username)
	svc.recorder.Record(ctx, activity.TypeDeclineStudent, actor.DisplayName(), activity.StatusSuccess,
		map[string]interface{}{"student_id": existing.ID, "section": existing.ServiceSection})
	svc.sendStatusEmail(existing, "Your registration was declined", "student_declined", actor)
	return nil
}

func (svc *Service) Graduate(ctx context.Context, id string, actor core.Actor) (Student, error) {
	existing, err := svc.repo.GetStudent(ctx, core.CleanString(id))
	if err != nil {
		return Student{}, err
	}
	if err = authorize(actor, existing); err != nil {
		return Student{}, err
	}
	s, err := svc.repo.UpdateFields(ctx, existing.ID, map[string]interface{}{
		ColStatus:    StatusGraduated,
		ColUpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Student{}, err
	}
	svc.recorder.Record(ctx, activity.TypeGraduateStudent, actor.DisplayName(), activity.StatusSuccess,
		map[string]interface{}{"student_id": s.ID})
	return s, nil
}

func (svc *Service) Delete(ctx context.Context, id string, actor core.Actor) error {
	if !actor.IsManager() {
		return errManagerOnly
	}
	existing, err := svc.repo.GetStudent(ctx, core.CleanString(id))
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteStudent(ctx, existing.ID); err != nil {
		return err
	}
	svc.recorder.Record(ctx, activity.TypeDeleteStudent, actor.DisplayName(), activity.StatusSuccess,
		map[string]interface{}{"student_id": existing.ID, "full_name": existing.FullName})
	return nil
}

// Get returns a student visible to actor: students only see their own record.
func (svc *Service) Get(ctx context.Context, id string, actor core.Actor) (Student, error) {
	s, err := svc.repo.GetStudent(ctx, core.CleanString(id))
	if err != nil {
		return Student{}, err
	}
	if actor.IsStaff() {
		if !actor.CanSeeSection(s.ServiceSection) {
			return Student{}, errOtherSection
		}
		return s, nil
	}
	if s.UserID == nil || *s.UserID != actor.ID {
		return Student{}, core.NewForbiddenError("permission denied")
	}
	return s, nil
}

// ForUser returns the student record linked to an account.
func (svc *Service) ForUser(ctx context.Context, userID int) (Student, error) {
	return svc.repo.GetStudentByUserID(ctx, userID)
}

// List returns the students visible to actor: admins see their section and the unclaimed students.
func (svc *Service) List(ctx context.Context, filter QueryFilter, actor core.Actor) ([]Student, error) {
	if !actor.IsStaff() {
		return nil, errStaffOnly
	}
	filter.Section = core.CleanString(filter.Section)
	filter.Search = core.CleanString(filter.Search)
	if actor.IsAdmin() {
		switch {
		case filter.Section != "" && !actor.CanSeeSection(filter.Section):
			return nil, errOtherSection
		case filter.Section == "" && actor.Section != "":
			filter.Section = actor.Section
			filter.IncludeUnclaimed = true
		case filter.Section == "":
			filter.UnclaimedOnly = true
		}
	}

	students, err := svc.repo.QueryStudents(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []Student{}
	}
	return students, nil
}

func (svc *Service) Pending(ctx context.Context, actor core.Actor) ([]Student, error) {
	return svc.List(ctx, QueryFilter{Status: StatusPending}, actor)
}

func (svc *Service) sendStatusEmail(s Student, subject, tmpl string, actor core.Actor) {
	if s.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: s.FullName, Address: s.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: map[string]interface{}{
			"Name":      s.FullName,
			"StudentID": s.ID,
			"By":        actor.DisplayName(),
			"Section":   s.ServiceSection,
		},
	})
}
