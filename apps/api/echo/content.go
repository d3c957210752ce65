package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core/gallery"
	"github.com/gibigubae/registry/core/schedule"
)

type contentApi struct {
	scheduleSvc *schedule.Service
	gallerySvc  *gallery.Service
	b           binder
}

func registerContentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	b binder,
	scheduleSvc *schedule.Service,
	gallerySvc *gallery.Service,
) {
	api := contentApi{scheduleSvc: scheduleSvc, gallerySvc: gallerySvc, b: b}

	sg := g.Group("/schedules", jwt, staffMiddleware)
	sg.PUT("", api.replaceSchedule)
	sg.POST("/items", api.createScheduleItem)
	sg.PUT("/items/:id", api.updateScheduleItem)
	sg.DELETE("/items/:id", api.destroyScheduleItem)

	gg := g.Group("/gallery", jwt, staffMiddleware)
	gg.POST("", api.uploadGalleryItem)
	gg.DELETE("/:id", api.destroyGalleryItem)

	// public; must follow the groups above
	g.GET("/schedules", api.querySchedule)
	g.GET("/gallery", api.queryGallery)
}

func (api *contentApi) querySchedule(ctx echo.Context) error {
	items, err := api.scheduleSvc.Get(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting schedule")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *contentApi) replaceSchedule(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data schedule.Replace
	if err = api.b.bodyStruct(ctx, &data, "Replace"); err != nil {
		return err
	}
	items, err := api.scheduleSvc.Replace(ctx.Request().Context(), actor, data.Items)
	if err != nil {
		return errors.Wrap(err, "replacing schedule")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *contentApi) createScheduleItem(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data schedule.NewItem
	if err = api.b.bodyStruct(ctx, &data, "NewItem"); err != nil {
		return err
	}
	items, err := api.scheduleSvc.AddItem(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "adding schedule item")
	}
	return ctx.JSON(http.StatusCreated, items)
}

func (api *contentApi) updateScheduleItem(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data schedule.NewItem
	if err = api.b.bodyStruct(ctx, &data, "NewItem"); err != nil {
		return err
	}
	items, err := api.scheduleSvc.UpdateItem(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating schedule item")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *contentApi) destroyScheduleItem(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	items, err := api.scheduleSvc.RemoveItem(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "removing schedule item")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *contentApi) queryGallery(ctx echo.Context) error {
	items, err := api.gallerySvc.List(ctx.Request().Context(), ctx.QueryParam("category"))
	if err != nil {
		return errors.Wrap(err, "querying gallery")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *contentApi) uploadGalleryItem(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data gallery.NewItem
	if err = api.b.bodyStruct(ctx, &data, "NewItem"); err != nil {
		return err
	}
	item, err := api.gallerySvc.Upload(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "uploading gallery item")
	}
	return ctx.JSON(http.StatusCreated, item)
}

func (api *contentApi) destroyGalleryItem(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	if err = api.gallerySvc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting gallery item")
	}
	return ctx.NoContent(http.StatusNoContent)
}
