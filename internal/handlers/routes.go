package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	"subkeeper/internal/common"
	"subkeeper/internal/middleware"
)

// Router wires handlers onto an echo instance.
type Router struct {
	Subscriptions *SubscriptionHandlers
	Plans         *PlanHandlers
	Health        *HealthHandlers
	Versions      *middleware.VersionMiddleware
	// Authenticate resolves the subscriber for every /v1 route.
	Authenticate echo.MiddlewareFunc
	// CatalogToken guards /internal/catalog; the routes are not mounted when empty.
	CatalogToken string
	Metrics      http.Handler
	Swagger      bool
}

func (r Router) Register(e *echo.Echo) {
	e.GET("/health", r.Health.HealthCheck)
	e.GET("/health/ready", r.Health.ReadinessCheck)
	if r.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(r.Metrics))
	}
	if r.Swagger {
		e.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	v1 := r.Versions.VersionRoute(e, "v1")
	v1.Use(r.Authenticate)

	subs := v1.Group("/subscriptions")
	subs.POST("", r.Subscriptions.CreateSubscription)
	subs.GET("", r.Subscriptions.ListSubscriptions)
	subs.GET("/active", r.Subscriptions.GetActiveSubscription)
	subs.GET("/features/:name", r.Subscriptions.HasFeature)
	subs.PUT("/:id/change-plan", r.Subscriptions.ChangePlan)
	subs.POST("/:id/deactivate", r.Subscriptions.DeactivateSubscription)

	v1.GET("/plans", r.Plans.ListPlans)
	v1.GET("/plans/:id", r.Plans.GetPlan)

	if r.CatalogToken != "" {
		catalog := e.Group("/internal/catalog", echoMiddleware.KeyAuthWithConfig(echoMiddleware.KeyAuthConfig{
			KeyLookup:  "header:" + echo.HeaderAuthorization,
			AuthScheme: "Bearer",
			Validator: func(key string, c echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(r.CatalogToken)) == 1, nil
			},
			ErrorHandler: func(err error, c echo.Context) error {
				return common.SendUnauthorizedError(c)
			},
		}))
		catalog.POST("/plans/:id/invalidate", r.Plans.InvalidatePlan)
		catalog.POST("/invalidate", r.Plans.InvalidateCatalog)
	}
}
