package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core/attendance"
)

type attendanceApi struct {
	svc *attendance.Service
	b   binder
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, b binder, svc *attendance.Service) {
	api := attendanceApi{svc: svc, b: b}

	ag := g.Group("/attendance", jwt, staffMiddleware)
	ag.POST("", api.save)
	ag.GET("", api.query)
	ag.GET("/analytics", api.analytics)
	ag.DELETE("/:date/:section", api.destroy, managerMiddleware)
}

func (api *attendanceApi) save(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data attendance.Batch
	if err = api.b.bodyStruct(ctx, &data, "Batch"); err != nil {
		return err
	}
	res, err := api.svc.SaveBatch(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "saving attendance")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attendanceApi) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	filter := attendance.HistoryFilter{
		From:    ctx.QueryParam("from"),
		To:      ctx.QueryParam("to"),
		Section: ctx.QueryParam("section"),
	}
	entries, err := api.svc.History(ctx.Request().Context(), filter, actor)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *attendanceApi) analytics(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	stats, err := api.svc.Analytics(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "computing attendance analytics")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *attendanceApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	if err = api.svc.Delete(ctx.Request().Context(), ctx.Param("date"), ctx.Param("section"), actor); err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	return ctx.NoContent(http.StatusNoContent)
}
