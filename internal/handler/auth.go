package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/geo-regions/internal/model"
	"github.com/iliyamo/geo-regions/internal/service"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth    *service.AuthService
	Users   *service.UserService
	Timeout time.Duration
}

func NewAuthHandler(auth *service.AuthService, users *service.UserService, timeout time.Duration) *AuthHandler {
	if auth == nil || users == nil {
		panic("nil service passed to NewAuthHandler")
	}
	return &AuthHandler{Auth: auth, Users: users, Timeout: timeout}
}

// ----- DTOs -----

type registerReq struct {
	Name        string        `json:"name" validate:"required,max=100"`
	Email       string        `json:"email" validate:"required,email"`
	Password    string        `json:"password" validate:"required,min=8,max=72"`
	Address     string        `json:"address" validate:"omitempty,max=300"`
	Coordinates *model.LngLat `json:"coordinates"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authResp struct {
	User    *model.User `json:"user,omitempty"`
	Access  tokenPart   `json:"access"`
	Refresh tokenPart   `json:"refresh"`
}

func newAuthResp(u *model.User, p *service.TokenPair) authResp {
	return authResp{
		User:    u,
		Access:  tokenPart{Token: p.AccessToken, Expires: p.AccessExpiresAt},
		Refresh: tokenPart{Token: p.RefreshToken, Expires: p.RefreshExpiresAt},
	}
}

// Register creates the user and returns tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	u, pair, err := h.Auth.Register(ctx, service.CreateUserInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		Address:     req.Address,
		Coordinates: req.Coordinates,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, newAuthResp(u, pair))
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	u, pair, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, newAuthResp(u, pair))
}

// Refresh rotates the refresh token and issues a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	pair, err := h.Auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, newAuthResp(nil, pair))
}

// Logout revokes the refresh token in the body.  No access token needed.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	if err := h.Auth.Logout(ctx, req.RefreshToken); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll revokes every refresh token of the caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	if err := h.Auth.LogoutAll(ctx, uid); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	u, err := h.Users.FindByID(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}
