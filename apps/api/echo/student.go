package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core"
	"github.com/gibigubae/registry/core/student"
)

type studentApi struct {
	svc *student.Service
	b   binder
}

func registerStudentAPI(g *echo.Group, jwt, optionalJWT echo.MiddlewareFunc, b binder, svc *student.Service) {
	api := studentApi{svc: svc, b: b}

	sg := g.Group("/students")

	// anonymous registration is allowed
	sg.POST("/register", api.register, optionalJWT)

	ag := sg.Group("", jwt)
	ag.GET("", api.query, staffMiddleware)
	ag.GET("/pending", api.queryPending, staffMiddleware)
	ag.POST("/import", api.importMany, staffMiddleware)
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id", api.update)
	ag.POST("/:id/approve", api.approve, staffMiddleware)
	ag.POST("/:id/decline", api.decline, staffMiddleware)
	ag.POST("/:id/graduate", api.graduate, staffMiddleware)
	ag.DELETE("/:id", api.destroy, managerMiddleware)
}

type ImportRequest struct {
	Students []student.Payload `json:"students"`
}

func (api *studentApi) register(ctx echo.Context) error {
	var actor *core.Actor
	if a, err := getContextActor(ctx); err == nil {
		actor = &a
	}
	var payload student.Payload
	if err := api.b.body(ctx, &payload, "Payload"); err != nil {
		return err
	}

	s, err := api.svc.Register(ctx.Request().Context(), payload, actor)
	if err != nil {
		return errors.Wrap(err, "registering student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	filter := student.QueryFilter{
		Section: ctx.QueryParam("section"),
		Status:  ctx.QueryParam("status"),
		Search:  ctx.QueryParam("search"),
	}
	students, err := api.svc.List(ctx.Request().Context(), filter, actor)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) queryPending(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	students, err := api.svc.Pending(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "querying pending students")
	}
	return ctx.JSON(http.StatusOK, students)
}

// importMany accepts either {"students": [...]} or a bare array of rows.
func (api *studentApi) importMany(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	raw, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "reading request body")
	}

	var rows []student.Payload
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &rows)
	} else {
		var data ImportRequest
		err = json.Unmarshal(trimmed, &data)
		rows = data.Students
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid import payload").SetInternal(err)
	}
	if len(rows) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "students", Error: "no rows to import"})
	}

	res, err := api.svc.Import(ctx.Request().Context(), rows, actor)
	if err != nil {
		return errors.Wrap(err, "importing students")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	s, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), actor)
	if err != nil {
		return errors.Wrap(err, "retrieving student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var payload student.Payload
	if err = api.b.body(ctx, &payload, "Payload"); err != nil {
		return err
	}
	s, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), payload, actor)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) approve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	s, err := api.svc.Approve(ctx.Request().Context(), ctx.Param("id"), actor)
	if err != nil {
		return errors.Wrap(err, "approving student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) decline(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	if err = api.svc.Decline(ctx.Request().Context(), ctx.Param("id"), actor); err != nil {
		return errors.Wrap(err, "declining student")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Student registration declined."})
}

func (api *studentApi) graduate(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	s, err := api.svc.Graduate(ctx.Request().Context(), ctx.Param("id"), actor)
	if err != nil {
		return errors.Wrap(err, "graduating student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	if err = api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), actor); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}
