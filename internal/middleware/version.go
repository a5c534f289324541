package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIVersion describes one mounted API version.
type APIVersion struct {
	Version string `json:"version"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// VersionMiddleware stamps version headers and rejects unknown version prefixes.
type VersionMiddleware struct {
	supportedVersions map[string]APIVersion
	build             string
}

func NewVersionMiddleware(build string) *VersionMiddleware {
	return &VersionMiddleware{
		supportedVersions: map[string]APIVersion{
			"v1": {Version: "v1", Status: "active", Message: "Current stable API version"},
		},
		build: build,
	}
}

// VersionRoute creates a version-specific route group.
func (vm *VersionMiddleware) VersionRoute(e *echo.Echo, version string) *echo.Group {
	group := e.Group("/" + version)
	group.Use(vm.VersionHeader(version))
	return group
}

// VersionHeader adds version information to response headers.
func (vm *VersionMiddleware) VersionHeader(version string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ver, ok := vm.supportedVersions[version]
			if !ok || ver.Status != "active" {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "Unsupported API version"})
			}
			h := c.Response().Header()
			h.Set("X-API-Version", ver.Version)
			if vm.build != "" {
				h.Set("X-Service-Version", vm.build)
			}
			return next(c)
		}
	}
}
