package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"subkeeper/internal/common"
	"subkeeper/internal/services"
)

// SubscriptionHandlers handles HTTP requests for the authenticated subscriber's subscriptions
type SubscriptionHandlers struct {
	subscriptionService services.SubscriptionService
}

// NewSubscriptionHandlers creates a new subscription handlers instance
func NewSubscriptionHandlers(subscriptionService services.SubscriptionService) *SubscriptionHandlers {
	return &SubscriptionHandlers{subscriptionService: subscriptionService}
}

type PlanRequest struct {
	PlanID string `json:"plan_id"`
}

type DeactivateRequest struct {
	Reason string `json:"reason"`
}

type FeatureResponse struct {
	Feature string `json:"feature"`
	Enabled bool   `json:"enabled"`
}

func subscriber(c echo.Context) (uuid.UUID, bool) {
	return common.GetSubscriberIDFromContext(c.Request().Context())
}

// CreateSubscription godoc
// @Summary      Subscribe to a plan
// @Description  Creates an active subscription, superseding the current one if any.
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        request  body      PlanRequest  true  "Target plan"
// @Success      201      {object}  models.SubscriptionView
// @Failure      400      {object}  common.ErrorResponse
// @Failure      503      {object}  common.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/subscriptions [post]
func (h *SubscriptionHandlers) CreateSubscription(c echo.Context) error {
	subscriberID, ok := subscriber(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	var req PlanRequest
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "body", "Invalid request format")
	}
	planID, err := common.ValidateUUID(req.PlanID, "plan_id")
	if err != nil {
		return common.SendValidationError(c, "plan_id", err.Error())
	}

	view, err := h.subscriptionService.Create(c.Request().Context(), subscriberID, planID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

// ListSubscriptions godoc
// @Summary      List the subscriber's subscriptions
// @Description  Newest first, paged.
// @Tags         subscriptions
// @Produce      json
// @Param        page       query     int  false  "1-based page"
// @Param        page_size  query     int  false  "Page size (max 100)"
// @Success      200        {object}  models.Page[models.SubscriptionView]
// @Security     BearerAuth
// @Router       /v1/subscriptions [get]
func (h *SubscriptionHandlers) ListSubscriptions(c echo.Context) error {
	subscriberID, ok := subscriber(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	page, pageSize, err := common.ParsePage(c)
	if err != nil {
		return common.SendValidationError(c, "pagination", err.Error())
	}

	result, err := h.subscriptionService.List(c.Request().Context(), subscriberID, page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// GetActiveSubscription godoc
// @Summary      Get the active subscription
// @Tags         subscriptions
// @Produce      json
// @Success      200  {object}  models.SubscriptionView
// @Failure      404  {object}  common.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/subscriptions/active [get]
func (h *SubscriptionHandlers) GetActiveSubscription(c echo.Context) error {
	subscriberID, ok := subscriber(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	view, err := h.subscriptionService.GetActive(c.Request().Context(), subscriberID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// ChangePlan godoc
// @Summary      Move an active subscription to another plan
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        id       path      string       true  "Subscription ID"
// @Param        request  body      PlanRequest  true  "Target plan"
// @Success      200      {object}  models.SubscriptionView
// @Failure      400      {object}  common.ErrorResponse
// @Failure      404      {object}  common.ErrorResponse
// @Failure      409      {object}  common.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/subscriptions/{id}/change-plan [put]
func (h *SubscriptionHandlers) ChangePlan(c echo.Context) error {
	subscriberID, ok := subscriber(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	subscriptionID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	var req PlanRequest
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "body", "Invalid request format")
	}
	planID, err := common.ValidateUUID(req.PlanID, "plan_id")
	if err != nil {
		return common.SendValidationError(c, "plan_id", err.Error())
	}

	view, err := h.subscriptionService.ChangePlan(c.Request().Context(), subscriberID, subscriptionID, planID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// DeactivateSubscription godoc
// @Summary      End an active subscription
// @Description  Not idempotent: deactivating an inactive subscription is a conflict.
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        id       path      string             true   "Subscription ID"
// @Param        request  body      DeactivateRequest  false  "Optional reason"
// @Success      200      {object}  models.SubscriptionView
// @Failure      404      {object}  common.ErrorResponse
// @Failure      409      {object}  common.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/subscriptions/{id}/deactivate [post]
func (h *SubscriptionHandlers) DeactivateSubscription(c echo.Context) error {
	subscriberID, ok := subscriber(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	subscriptionID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	var req DeactivateRequest
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "body", "Invalid request format")
	}

	view, err := h.subscriptionService.Deactivate(c.Request().Context(), subscriberID, subscriptionID, strings.TrimSpace(req.Reason))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// HasFeature godoc
// @Summary      Check a feature entitlement
// @Tags         subscriptions
// @Produce      json
// @Param        name  path      string  true  "Feature name"
// @Success      200   {object}  FeatureResponse
// @Security     BearerAuth
// @Router       /v1/subscriptions/features/{name} [get]
func (h *SubscriptionHandlers) HasFeature(c echo.Context) error {
	subscriberID, ok := subscriber(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		return common.SendValidationError(c, "name", "feature name is required")
	}

	enabled, err := h.subscriptionService.HasFeature(c.Request().Context(), subscriberID, name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, FeatureResponse{Feature: name, Enabled: enabled})
}
