package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/geo-regions/internal/model"
	"github.com/iliyamo/geo-regions/internal/service"
)

type RegionHandler struct {
	Regions *service.RegionService
	Timeout time.Duration
}

func NewRegionHandler(regions *service.RegionService, timeout time.Duration) *RegionHandler {
	if regions == nil {
		panic("nil service passed to NewRegionHandler")
	}
	return &RegionHandler{Regions: regions, Timeout: timeout}
}

type regionCreateReq struct {
	Name     string         `json:"name" validate:"required,max=100"`
	Geometry *model.Polygon `json:"geometry" validate:"required"`
}

type regionUpdateReq struct {
	Name     *string        `json:"name" validate:"omitempty,min=1,max=100"`
	Geometry *model.Polygon `json:"geometry" validate:"omitempty"`
}

// Create handles POST /v1/regions.  The caller becomes the owner.
func (h *RegionHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req regionCreateReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	region, err := h.Regions.Create(ctx, req.Name, *req.Geometry, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, region)
}

// List handles GET /v1/regions?page=&limit=.
func (h *RegionHandler) List(c echo.Context) error {
	page, limit, err := pageParams(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	res, err := h.Regions.FindAll(ctx, page, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *RegionHandler) Get(c echo.Context) error {
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	region, err := h.Regions.FindByID(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, region)
}

// Contains handles GET /v1/regions/contains?point=lng,lat.
func (h *RegionHandler) Contains(c echo.Context) error {
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	regions, err := h.Regions.FindContainingPoint(ctx, c.QueryParam("point"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, regions)
}

// Near handles GET /v1/regions/near?point=lng,lat&distance=meters&exclude_own=bool.
func (h *RegionHandler) Near(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	distance, err := strconv.ParseFloat(c.QueryParam("distance"), 64)
	if err != nil {
		return respondError(c, service.InvalidInput("distance must be a number of meters", err))
	}
	excludeOwn := false
	if s := c.QueryParam("exclude_own"); s != "" {
		if excludeOwn, err = strconv.ParseBool(s); err != nil {
			return respondError(c, service.InvalidInput("exclude_own must be a boolean", err))
		}
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	regions, err := h.Regions.FindNear(ctx, c.QueryParam("point"), distance, uid, excludeOwn)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, regions)
}

// Update handles PUT/PATCH /v1/regions/:id.  Only the owner may update.
func (h *RegionHandler) Update(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req regionUpdateReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	region, err := h.Regions.Update(ctx, c.Param("id"), model.RegionPatch{Name: req.Name, Geometry: req.Geometry}, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, region)
}

// Delete handles DELETE /v1/regions/:id.  Only the owner may delete.
func (h *RegionHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	if err := h.Regions.Delete(ctx, c.Param("id"), uid); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
