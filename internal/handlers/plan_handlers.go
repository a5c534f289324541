package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"subkeeper/internal/common"
	"subkeeper/internal/services"
)

// PlanHandlers serves the read-only plan catalog and its invalidation hook.
type PlanHandlers struct {
	planService services.PlanService
}

func NewPlanHandlers(planService services.PlanService) *PlanHandlers {
	return &PlanHandlers{planService: planService}
}

// ListPlans godoc
// @Summary      List active plans
// @Description  Ordered by name, paged.
// @Tags         plans
// @Produce      json
// @Param        page       query     int  false  "1-based page"
// @Param        page_size  query     int  false  "Page size (max 100)"
// @Success      200        {object}  models.Page[models.PlanView]
// @Security     BearerAuth
// @Router       /v1/plans [get]
func (h *PlanHandlers) ListPlans(c echo.Context) error {
	page, pageSize, err := common.ParsePage(c)
	if err != nil {
		return common.SendValidationError(c, "pagination", err.Error())
	}
	result, err := h.planService.ListPlans(c.Request().Context(), page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// GetPlan godoc
// @Summary      Get an active plan with its features
// @Tags         plans
// @Produce      json
// @Param        id   path      string  true  "Plan ID"
// @Success      200  {object}  models.PlanView
// @Failure      404  {object}  common.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/plans/{id} [get]
func (h *PlanHandlers) GetPlan(c echo.Context) error {
	planID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	view, err := h.planService.GetPlan(c.Request().Context(), planID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// InvalidatePlan godoc
// @Summary      Drop cached views of a changed plan
// @Description  Called by catalog administration after editing a plan or its features.
// @Tags         catalog
// @Param        id  path  string  true  "Plan ID"
// @Success      204
// @Security     CatalogToken
// @Router       /internal/catalog/plans/{id}/invalidate [post]
func (h *PlanHandlers) InvalidatePlan(c echo.Context) error {
	planID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	if err := h.planService.InvalidatePlan(c.Request().Context(), planID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// InvalidateCatalog godoc
// @Summary      Drop every cached catalog view
// @Tags         catalog
// @Success      204
// @Security     CatalogToken
// @Router       /internal/catalog/invalidate [post]
func (h *PlanHandlers) InvalidateCatalog(c echo.Context) error {
	if err := h.planService.InvalidateCatalog(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
