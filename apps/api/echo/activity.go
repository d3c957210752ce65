package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core/activity"
	"github.com/gibigubae/registry/core/notification"
)

type activityApi struct {
	notificationSvc *notification.Service
	activitySvc     *activity.Service
	b               binder
}

func registerActivityAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	b binder,
	notificationSvc *notification.Service,
	activitySvc *activity.Service,
) {
	api := activityApi{notificationSvc: notificationSvc, activitySvc: activitySvc, b: b}

	ag := g.Group("/activity", jwt)
	ag.GET("/notifications", api.queryNotifications, staffMiddleware)
	ag.POST("/notifications", api.createNotification, staffMiddleware)
	ag.POST("/notifications/:id/dismiss", api.dismissNotification)
	ag.DELETE("/notifications/:id", api.markAsRead, staffMiddleware)
	ag.GET("/logs", api.queryLogs, staffMiddleware)
}

func (api *activityApi) queryNotifications(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	ns, err := api.notificationSvc.ListFor(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	return ctx.JSON(http.StatusOK, ns)
}

func (api *activityApi) createNotification(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data notification.NewNotification
	if err = api.b.bodyStruct(ctx, &data, "NewNotification"); err != nil {
		return err
	}
	n, err := api.notificationSvc.Post(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "posting notification")
	}
	return ctx.JSON(http.StatusCreated, n)
}

func (api *activityApi) dismissNotification(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	if err = api.notificationSvc.Dismiss(ctx.Request().Context(), ctx.Param("id"), actor); err != nil {
		return errors.Wrap(err, "dismissing notification")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Notification dismissed."})
}

func (api *activityApi) markAsRead(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	if err = api.notificationSvc.MarkAsRead(ctx.Request().Context(), ctx.Param("id"), actor); err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *activityApi) queryLogs(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	limit, _ := strconv.Atoi(ctx.QueryParam("limit")) // 0 selects the default
	entries, err := api.activitySvc.Recent(ctx.Request().Context(), actor, limit)
	if err != nil {
		return errors.Wrap(err, "querying activity log")
	}
	return ctx.JSON(http.StatusOK, entries)
}
