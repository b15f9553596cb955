package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/geo-regions/internal/model"
	"github.com/iliyamo/geo-regions/internal/service"
)

type UserHandler struct {
	Users   *service.UserService
	Timeout time.Duration
}

func NewUserHandler(users *service.UserService, timeout time.Duration) *UserHandler {
	if users == nil {
		panic("nil service passed to NewUserHandler")
	}
	return &UserHandler{Users: users, Timeout: timeout}
}

type userUpdateReq struct {
	Name        *string       `json:"name" validate:"omitempty,min=1,max=100"`
	Email       *string       `json:"email" validate:"omitempty,email"`
	Password    *string       `json:"password" validate:"omitempty,min=8,max=72"`
	Address     *string       `json:"address" validate:"omitempty,min=1,max=300"`
	Coordinates *model.LngLat `json:"coordinates"`
}

// List handles GET /v1/users?page=&limit=.
func (h *UserHandler) List(c echo.Context) error {
	page, limit, err := pageParams(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	res, err := h.Users.FindAll(ctx, page, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *UserHandler) Get(c echo.Context) error {
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	u, err := h.Users.FindByID(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Update handles PUT/PATCH /v1/users/:id.  Users may only change
// themselves.
func (h *UserHandler) Update(c echo.Context) error {
	id, ok, err := h.self(c)
	if !ok {
		return err
	}
	var req userUpdateReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	u, err := h.Users.Update(ctx, id, service.UpdateUserInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		Address:     req.Address,
		Coordinates: req.Coordinates,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Delete handles DELETE /v1/users/:id and cascades to the user's regions.
func (h *UserHandler) Delete(c echo.Context) error {
	id, ok, err := h.self(c)
	if !ok {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	if err := h.Users.Delete(ctx, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// self checks that :id is the caller.
func (h *UserHandler) self(c echo.Context) (string, bool, error) {
	uid, err := getUserID(c)
	if err != nil {
		return "", false, c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if c.Param("id") != uid {
		return "", false, respondError(c, service.Unauthorized("you can only modify your own account"))
	}
	return uid, true, nil
}
