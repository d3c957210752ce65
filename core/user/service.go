package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/activity"
	"github.com/gibigubae/registry/core/media"
	"github.com/gibigubae/registry/core/notification"
)

const (
	photoMaxDim = 512

	// IncompleteAccountTTL is how long a signup may stay without a filled-in profile.
	IncompleteAccountTTL = 24 * time.Hour
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("user not found")
	ErrUsernameExists     = errors.New("a user with this username already exists")
	ErrStudentIDExists    = errors.New("a student with this id already exists")
	ErrInvalidCredentials = core.NewAuthError("invalid credentials")
	ErrAccountBlocked     = core.NewForbiddenError("account blocked")
	ErrNoAccount          = errors.New("this student has no linked account")
	errManagerOnly        = core.NewForbiddenError("only the manager can do this")
	errNotAnAdmin         = core.NewNotFoundError("admin not found")
)

type (
	Repository interface {
		// CheckUniqueness fails with ErrUsernameExists or ErrStudentIDExists. Comparisons are case-insensitive.
		// studentID is ignored when empty, excludedID when 0.
		CheckUniqueness(ctx context.Context, username, studentID string, excludedID int, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		QueryUsers(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		SetLastActivity(ctx context.Context, id int, at time.Time, exec ...core.DBExecutor) error
		DeleteUsersByID(ctx context.Context, ids []int, exec ...core.DBExecutor) error
		GetStudentLink(ctx context.Context, studentID string, exec ...core.DBExecutor) (StudentLink, error)
		// DeleteIncompleteStudents removes student accounts created before the threshold whose
		// profile is missing, still carries the placeholder name or was never filled in.
		DeleteIncompleteStudents(ctx context.Context, createdBefore time.Time, exec ...core.DBExecutor) (int64, error)
	}

	// PlaceholderCreator files the empty student record paired with a new signup.
	PlaceholderCreator interface {
		CreatePlaceholder(ctx context.Context, studentID string, userID int, fullName string, exec ...core.DBExecutor) error
	}

	Service struct {
		tx       core.TxRunner
		repo     Repository
		students PlaceholderCreator
		notifier notification.Notifier
		recorder activity.Recorder
		mailSvc  core.EmailService
		logger   core.Logger
		conf     *core.Config
	}
)

func NewService(
	tx core.TxRunner,
	repo Repository,
	students PlaceholderCreator,
	notifier notification.Notifier,
	recorder activity.Recorder,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		tx:       tx,
		repo:     repo,
		students: students,
		notifier: notifier,
		recorder: recorder,
		mailSvc:  mailSvc,
		logger:   logger,
		conf:     conf,
	}
}

func (svc *Service) checkUniqueness(ctx context.Context, uname, studentID string, excludedID int, exec ...core.DBExecutor) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, studentID, excludedID, exec...); err != nil {
		switch cause := errors.Cause(err); cause {
		case ErrUsernameExists, ErrStudentIDExists:
			return core.NewValidationError(cause, core.FieldError{Field: "username", Error: cause.Error()})
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
	}
	return nil
}

// Signup creates a student account and its placeholder student record in one transaction.
func (svc *Service) Signup(ctx context.Context, s Signup) (User, error) {
	s.Clean()
	studentID := StudentIDFromUsername(s.Username)

	now := time.Now().UTC()
	usr := User{
		Username:  s.Username,
		Name:      s.Username,
		Role:      core.RoleStudent,
		Status:    StatusActive,
		StudentID: studentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(s.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.checkUniqueness(ctx, usr.Username, studentID, 0, exec); err != nil {
			return err
		}
		created, err := svc.repo.CreateUser(ctx, usr, exec)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}
		if err = svc.students.CreatePlaceholder(ctx, studentID, created.ID, created.Username, exec); err != nil {
			return errors.Wrap(err, "creating student placeholder")
		}
		usr = created
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

// Authenticate checks the credentials and records the activity timestamp.
func (svc *Service) Authenticate(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Username: core.CleanString(uname)})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by username")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if usr.IsBlocked() {
		return User{}, ErrAccountBlocked
	}

	now := time.Now().UTC()
	if err = svc.repo.SetLastActivity(ctx, usr.ID, now); err != nil {
		svc.logger.Warn("setting last activity", err, usr.Actor())
	} else {
		usr.LastActivity = now
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Username: core.CleanString(uname)})
}

// ResetPassword puts the account linked to a student back on the default password.
func (svc *Service) ResetPassword(ctx context.Context, actor core.Actor, studentID string) error {
	if !actor.IsStaff() {
		return core.NewForbiddenError("permission denied")
	}
	link, err := svc.repo.GetStudentLink(ctx, core.CleanString(studentID))
	if err != nil {
		return err
	}
	if !actor.CanManageSection(link.Section) {
		return core.NewForbiddenError("this student belongs to another section")
	}
	if link.UserID == 0 {
		return core.NewValidationError(ErrNoAccount)
	}

	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: link.UserID})
	if err != nil {
		return err
	}
	if err = usr.SetPassword(svc.conf.DefaultPassword); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.MustChangePassword = true
	usr.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}

	svc.notifier.Notify(ctx, notification.TypePassword,
		fmt.Sprintf("Password of %s (%s) was reset by %s", link.FullName, link.StudentID, actor.DisplayName()),
		link.Section, actor.Username)
	svc.recorder.Record(ctx, activity.TypeResetPassword, actor.DisplayName(), activity.StatusSuccess,
		map[string]interface{}{"student_id": link.StudentID, "user_id": usr.ID})
	if link.Email != "" {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: link.FullName, Address: link.Email}},
			Subject:      "Your password was reset",
			TemplateName: "password_reset",
			TemplateData: map[string]interface{}{"Name": link.FullName},
		})
	}
	return nil
}

// ChangePassword replaces the actor's password after verifying the current one.
func (svc *Service) ChangePassword(ctx context.Context, actor core.Actor, cp ChangePassword) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: actor.ID})
	if err != nil {
		return err
	}
	if err = usr.CheckPassword(cp.CurrentPassword); err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "current_password", Error: "incorrect password"})
	}
	if cp.NewPassword == cp.CurrentPassword {
		return core.NewValidationError(nil, core.FieldError{Field: "new_password", Error: pwdSameText})
	}
	if err = validatePassword("new_password", cp.NewPassword, usr.Username, usr.Name); err != nil {
		return err
	}

	if err = usr.SetPassword(cp.NewPassword); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.MustChangePassword = false
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

// UpdateProfile lets any user change their display name and photo.
func (svc *Service) UpdateProfile(ctx context.Context, actor core.Actor, up UpdateProfile) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: actor.ID})
	if err != nil {
		return User{}, err
	}
	if up.Name != nil {
		if name := core.CleanString(*up.Name); name != "" {
			usr.Name = name
		}
	}
	if up.PhotoURL != nil {
		photo, err := media.NormalizeDataURL(*up.PhotoURL, photoMaxDim, svc.conf.GalleryMaxBytes)
		if err != nil {
			return User{}, err
		}
		usr.PhotoURL = photo
	}
	usr.UpdatedAt = time.Now().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

func (svc *Service) ListAdmins(ctx context.Context, actor core.Actor) ([]User, error) {
	if !actor.IsManager() {
		return nil, errManagerOnly
	}
	users, err := svc.repo.QueryUsers(ctx, QueryFilter{Roles: []string{core.RoleAdmin}})
	if err != nil {
		return nil, errors.Wrap(err, "querying admins")
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

func (svc *Service) RegisterAdmin(ctx context.Context, actor core.Actor, na NewAdmin) (User, error) {
	if !actor.IsManager() {
		return User{}, errManagerOnly
	}
	na.Clean()
	if err := svc.checkUniqueness(ctx, na.Username, "", 0); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := User{
		Username:  na.Username,
		Name:      na.Name,
		Role:      core.RoleAdmin,
		Section:   na.Section,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(na.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating admin")
	}

	svc.notifier.Notify(ctx, notification.TypeAdmin,
		fmt.Sprintf("%s was registered as admin of %s", usr.DisplayName(), usr.Section), usr.Section, actor.Username)
	svc.recorder.Record(ctx, activity.TypeRegisterAdmin, actor.DisplayName(), activity.StatusSuccess,
		map[string]interface{}{"username": usr.Username, "section": usr.Section})
	return usr, nil
}

func (svc *Service) getAdmin(ctx context.Context, id int) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, errNotAnAdmin
		}
		return User{}, err
	}
	if !usr.IsAdmin() {
		return User{}, errNotAnAdmin
	}
	return usr, nil
}

func (svc *Service) UpdateAdmin(ctx context.Context, actor core.Actor, id int, ua UpdateAdmin) (User, error) {
	if !actor.IsManager() {
		return User{}, errManagerOnly
	}
	ua.Clean()
	usr, err := svc.getAdmin(ctx, id)
	if err != nil {
		return User{}, err
	}

	if ua.Username != "" && ua.Username != usr.Username {
		if err = svc.checkUniqueness(ctx, ua.Username, "", usr.ID); err != nil {
			return User{}, err
		}
		usr.Username = ua.Username
	}
	if ua.Name != "" {
		usr.Name = ua.Name
	}
	if ua.Section != "" {
		usr.Section = ua.Section
	}
	if ua.Password != "" {
		if err = usr.SetPassword(ua.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "updating admin")
	}

	svc.recorder.Record(ctx, activity.TypeUpdateAdmin, actor.DisplayName(), activity.StatusSuccess,
		map[string]interface{}{"user_id": usr.ID, "username": usr.Username, "section": usr.Section})
	return usr, nil
}

// ToggleAdminStatus blocks an active admin or reactivates a blocked one.
func (svc *Service) ToggleAdminStatus(ctx context.Context, actor core.Actor, id int) (User, error) {
	if !actor.IsManager() {
		return User{}, errManagerOnly
	}
	usr, err := svc.getAdmin(ctx, id)
	if err != nil {
		return User{}, err
	}
	if usr.IsBlocked() {
		usr.Status = StatusActive
	} else {
		usr.Status = StatusBlocked
	}
	usr.UpdatedAt = time.Now().UTC()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "updating admin")
	}

	svc.notifier.Notify(ctx, notification.TypeAdmin,
		fmt.Sprintf("Admin %s is now %s", usr.DisplayName(), usr.Status), usr.Section, actor.Username)
	svc.recorder.Record(ctx, activity.TypeToggleAdmin, actor.DisplayName(), activity.StatusSuccess,
		map[string]interface{}{"user_id": usr.ID, "status": usr.Status})
	return usr, nil
}

func (svc *Service) DeleteAdmin(ctx context.Context, actor core.Actor, id int) error {
	if !actor.IsManager() {
		return errManagerOnly
	}
	usr, err := svc.getAdmin(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteUsersByID(ctx, []int{usr.ID}); err != nil {
		return errors.Wrap(err, "deleting admin")
	}
	svc.recorder.Record(ctx, activity.TypeDeleteAdmin, actor.DisplayName(), activity.StatusSuccess,
		map[string]interface{}{"user_id": usr.ID, "username": usr.Username})
	return nil
}

// MakeStudentAdmin promotes the account of a student to admin of the student's section.
func (svc *Service) MakeStudentAdmin(ctx context.Context, actor core.Actor, studentID string) (User, error) {
	if !actor.IsManager() {
		return User{}, errManagerOnly
	}
	link, err := svc.repo.GetStudentLink(ctx, core.CleanString(studentID))
	if err != nil {
		return User{}, err
	}
	if link.UserID == 0 {
		return User{}, core.NewValidationError(ErrNoAccount)
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: link.UserID})
	if err != nil {
		return User{}, err
	}
	if usr.IsManager() {
		return User{}, core.NewForbiddenError("the manager cannot be demoted")
	}

	usr.Role = core.RoleAdmin
	if link.Section != "" {
		usr.Section = link.Section
	}
	if link.FullName != "" {
		usr.Name = link.FullName
	}
	usr.UpdatedAt = time.Now().UTC()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "promoting student")
	}

	svc.notifier.Notify(ctx, notification.TypeAdmin,
		fmt.Sprintf("%s (%s) is now an admin of %s", usr.DisplayName(), link.StudentID, usr.Section), usr.Section, actor.Username)
	svc.recorder.Record(ctx, activity.TypePromoteStudent, actor.DisplayName(), activity.StatusSuccess,
		map[string]interface{}{"student_id": link.StudentID, "user_id": usr.ID, "section": usr.Section})
	return usr, nil
}

// EnsureManager creates the configured manager account when it does not exist yet.
// Nothing happens without a configured manager password.
func (svc *Service) EnsureManager(ctx context.Context) error {
	uname := core.CleanString(svc.conf.ManagerUsername)
	if uname == "" || svc.conf.ManagerPassword == "" {
		return nil
	}
	if _, err := svc.repo.GetUser(ctx, GetFilter{Username: uname}); err == nil {
		return nil
	} else if errors.Cause(err) != ErrNotFound {
		return errors.Wrap(err, "finding manager")
	}

	now := time.Now().UTC()
	usr := User{
		Username:  uname,
		Name:      svc.conf.ManagerName,
		Role:      core.RoleManager,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(svc.conf.ManagerPassword); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	if _, err := svc.repo.CreateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "creating manager")
	}
	svc.logger.Info(fmt.Sprintf("manager account %q created", uname))
	return nil
}

// PurgeIncompleteStudents deletes signups older than IncompleteAccountTTL that never completed their profile.
func (svc *Service) PurgeIncompleteStudents(ctx context.Context, now time.Time) (int64, error) {
	n, err := svc.repo.DeleteIncompleteStudents(ctx, now.Add(-IncompleteAccountTTL))
	return n, errors.Wrap(err, "deleting incomplete student accounts")
}
