package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

var errHttpNotFound = echo.NewHTTPError(http.StatusNotFound, "not found")

type binder struct {
	validate *validator.Validate
}

// body decodes the request body into v. Path and query params are never bound.
func (b binder) body(ctx echo.Context, v interface{}, what string) error {
	if err := (&echo.DefaultBinder{}).BindBody(ctx, v); err != nil {
		return errors.Wrap(err, "binding to "+what)
	}
	return nil
}

// bodyStruct decodes and validates the request body.
func (b binder) bodyStruct(ctx echo.Context, v interface{}, what string) error {
	if err := b.body(ctx, v, what); err != nil {
		return err
	}
	return b.validate.Struct(v)
}

func intParam(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}

type SuccessResponse struct {
	Success string `json:"success"`
}
