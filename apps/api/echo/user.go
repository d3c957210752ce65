package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/student"
	"github.com/gibigubae/registry/core/user"
)

type authApi struct {
	userSvc    *user.Service
	studentSvc *student.Service
	conf       *core.Config
	b          binder
}

func registerAuthAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	b binder,
	userSvc *user.Service,
	studentSvc *student.Service,
	conf *core.Config,
) {
	api := authApi{userSvc: userSvc, studentSvc: studentSvc, conf: conf, b: b}

	ag := g.Group("/auth")
	ag.POST("/signup", api.signup)
	ag.POST("/login", api.login)
	ag.GET("/me", api.me, jwt)
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	AuthResponse struct {
		Token string    `json:"token"`
		User  user.User `json:"user"`
	}

	MeResponse struct {
		user.User
		Student *student.Student `json:"student,omitempty"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username)
	return validate.Struct(lr)
}

func (api *authApi) respondWithToken(ctx echo.Context, code int, usr user.User) error {
	token, err := GenerateToken(GetUserClaims(usr, api.conf), api.conf)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(code, AuthResponse{Token: token, User: usr})
}

func (api *authApi) signup(ctx echo.Context) error {
	var data user.Signup
	if err := api.b.body(ctx, &data, "Signup"); err != nil {
		return err
	}
	data.Clean()
	if err := api.b.validate.Struct(data); err != nil {
		return err
	}

	usr, err := api.userSvc.Signup(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing up")
	}
	return api.respondWithToken(ctx, http.StatusCreated, usr)
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := api.b.body(ctx, &data, "LoginRequest"); err != nil {
		return err
	}
	if err := data.Validate(api.b.validate); err != nil {
		return err
	}

	usr, err := api.userSvc.Authenticate(ctx.Request().Context(), data.Username, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	return api.respondWithToken(ctx, http.StatusOK, usr)
}

func (api *authApi) me(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	reqCtx := ctx.Request().Context()

	usr, err := api.userSvc.GetByID(reqCtx, actor.ID)
	if err != nil {
		if core.IsNotFound(err) {
			return errUnauthorized
		}
		return errors.Wrap(err, "finding user by ID")
	}
	resp := MeResponse{User: usr}
	if usr.IsStudent() {
		s, err := api.studentSvc.ForUser(reqCtx, usr.ID)
		switch {
		case err == nil:
			resp.Student = &s
		case !core.IsNotFound(err):
			return errors.Wrap(err, "finding student record")
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

type userApi struct {
	svc *user.Service
	b   binder
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, b binder, svc *user.Service) {
	api := userApi{svc: svc, b: b}

	ug := g.Group("/users", jwt)
	ug.POST("/change-password", api.changePassword)
	ug.PUT("/profile", api.updateProfile)
	ug.POST("/students/:id/reset-password", api.resetPassword, staffMiddleware)

	mg := ug.Group("", managerMiddleware)
	mg.GET("/admins", api.queryAdmins)
	mg.POST("/admins", api.createAdmin)
	mg.PUT("/admins/:id", api.updateAdmin)
	mg.POST("/admins/:id/toggle-status", api.toggleAdminStatus)
	mg.DELETE("/admins/:id", api.destroyAdmin)
	mg.POST("/students/:id/make-admin", api.makeStudentAdmin)
}

func (api *userApi) changePassword(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data user.ChangePassword
	if err = api.b.bodyStruct(ctx, &data, "ChangePassword"); err != nil {
		return err
	}
	if err = api.svc.ChangePassword(ctx.Request().Context(), actor, data); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password changed."})
}

func (api *userApi) updateProfile(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data user.UpdateProfile
	if err = api.b.bodyStruct(ctx, &data, "UpdateProfile"); err != nil {
		return err
	}
	usr, err := api.svc.UpdateProfile(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	if err = api.svc.ResetPassword(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset to the default password."})
}

func (api *userApi) queryAdmins(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	admins, err := api.svc.ListAdmins(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "querying admins")
	}
	return ctx.JSON(http.StatusOK, admins)
}

func (api *userApi) createAdmin(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data user.NewAdmin
	if err = api.b.body(ctx, &data, "NewAdmin"); err != nil {
		return err
	}
	data.Clean()
	if err = api.b.validate.Struct(data); err != nil {
		return err
	}

	usr, err := api.svc.RegisterAdmin(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "registering admin")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) updateAdmin(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	var data user.UpdateAdmin
	if err = api.b.body(ctx, &data, "UpdateAdmin"); err != nil {
		return err
	}
	data.Clean()
	if err = api.b.validate.Struct(data); err != nil {
		return err
	}

	usr, err := api.svc.UpdateAdmin(ctx.Request().Context(), actor, id, data)
	if err != nil {
		return errors.Wrap(err, "updating admin")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) toggleAdminStatus(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := api.svc.ToggleAdminStatus(ctx.Request().Context(), actor, id)
	if err != nil {
		return errors.Wrap(err, "toggling admin status")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroyAdmin(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteAdmin(ctx.Request().Context(), actor, id); err != nil {
		return errors.Wrap(err, "deleting admin")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) makeStudentAdmin(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	usr, err := api.svc.MakeStudentAdmin(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "making student admin")
	}
	return ctx.JSON(http.StatusOK, usr)
}
