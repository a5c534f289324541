package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"subkeeper/internal/common"
	"subkeeper/internal/logger"
)

const tokenContextKey = "user"

var ErrNoVerificationKey = errors.New("either a JWT secret or a JWKS URL is required")

// SubscriberClaims identifies the subscriber through the registered "sub" claim.
type SubscriberClaims struct {
	jwt.RegisteredClaims
}

type JWTOptions struct {
	Secret  string
	JWKSURL string
	// RefreshInterval controls background JWKS refreshes. Zero means hourly.
	RefreshInterval time.Duration
	Logger          *slog.Logger
}

// JWTMiddleware validates bearer tokens and puts the subscriber on the request context.
type JWTMiddleware struct {
	config echojwt.Config
	jwks   *keyfunc.JWKS
	logger *slog.Logger
}

func NewJWTMiddleware(opts JWTOptions) (*JWTMiddleware, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	m := &JWTMiddleware{logger: log}
	m.config = echojwt.Config{
		ContextKey: tokenContextKey,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(SubscriberClaims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			m.logger.DebugContext(c.Request().Context(), "token rejected", logger.Error(err))
			return common.SendUnauthorizedError(c)
		},
	}

	switch {
	case opts.JWKSURL != "":
		interval := opts.RefreshInterval
		if interval <= 0 {
			interval = time.Hour
		}
		jwks, err := keyfunc.Get(opts.JWKSURL, keyfunc.Options{
			RefreshInterval:   interval,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				log.Warn("jwks refresh failed", slog.String("url", opts.JWKSURL), logger.Error(err))
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load JWKS: %w", err)
		}
		m.jwks = jwks
		m.config.KeyFunc = jwks.Keyfunc
	case opts.Secret != "":
		m.config.SigningKey = []byte(opts.Secret)
		m.config.SigningMethod = jwt.SigningMethodHS256.Alg()
	default:
		return nil, ErrNoVerificationKey
	}
	return m, nil
}

// Authenticate validates the token and then resolves the subscriber from its subject.
func (m *JWTMiddleware) Authenticate() echo.MiddlewareFunc {
	validate := echojwt.WithConfig(m.config)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return validate(m.subscriber(next))
	}
}

func (m *JWTMiddleware) subscriber(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := c.Get(tokenContextKey).(*jwt.Token)
		if !ok {
			return common.SendUnauthorizedError(c)
		}
		claims, ok := token.Claims.(*SubscriberClaims)
		if !ok {
			return common.SendUnauthorizedError(c)
		}
		subscriberID, err := uuid.Parse(claims.Subject)
		if err != nil || subscriberID == uuid.Nil {
			m.logger.DebugContext(c.Request().Context(), "token subject is not a subscriber id", slog.String("sub", claims.Subject))
			return common.SendUnauthorizedError(c)
		}

		ctx := common.WithSubscriberID(c.Request().Context(), subscriberID)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// Close stops the background JWKS refresh, if any.
func (m *JWTMiddleware) Close() {
	if m.jwks != nil {
		m.jwks.EndBackground()
	}
}
