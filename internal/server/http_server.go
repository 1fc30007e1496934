// Package server exposes a local read-mostly HTTP view of the session manager.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"go.pilab.hu/recovery/domain"
	"go.pilab.hu/recovery/log"
	"go.pilab.hu/recovery/session"
)

// SessionSource is the part of session.Manager the server reads and drives.
type SessionSource interface {
	State() session.State
	SignOut(ctx context.Context) error
}

type stateResponse struct {
	Loading  bool            `json:"loading"`
	SignedIn bool            `json:"signedIn"`
	Session  *domain.Session `json:"session,omitempty"`
}

type handlers struct {
	source SessionSource
	logger log.Logger
}

// NewHTTPServer builds the inspector server. gatherer may be nil, in which
// case /metrics is not registered.
func NewHTTPServer(addr, serviceName string, source SessionSource, gatherer prometheus.Gatherer, appLogger log.Logger) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      NewRouter(serviceName, source, gatherer, appLogger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// NewRouter wires the routes and middleware.
func NewRouter(serviceName string, source SessionSource, gatherer prometheus.Gatherer, appLogger log.Logger) *echo.Echo {
	if appLogger == nil {
		appLogger = log.Nop()
	}
	h := &handlers{source: source, logger: appLogger}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(serviceName))
	e.Use(requestLogger(appLogger))

	e.GET("/healthz", h.health)
	e.GET("/session", h.session)
	e.GET("/state", h.state)
	e.POST("/signout", h.signOut)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return e
}

func requestLogger(appLogger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			fields := log.Fields{
				"method":  req.Method,
				"path":    req.URL.Path,
				"status":  c.Response().Status,
				"latency": time.Since(start).String(),
				"ip":      c.RealIP(),
			}
			if err != nil {
				appLogger.Error(req.Context(), "HTTP request failed", err, fields)
			} else {
				appLogger.Debug(req.Context(), "HTTP request", fields)
			}
			return nil
		}
	}
}

func (h *handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// session returns the signed-in session, 404 when signed out and 503 while
// restoration is still running.
func (h *handlers) session(c echo.Context) error {
	st := h.source.State()
	if st.Session == nil {
		if st.Loading {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "session restoration in progress")
		}
		return echo.NewHTTPError(http.StatusNotFound, "no active session")
	}
	return c.JSON(http.StatusOK, st.Session)
}

func (h *handlers) state(c echo.Context) error {
	st := h.source.State()
	return c.JSON(http.StatusOK, stateResponse{
		Loading:  st.Loading,
		SignedIn: st.Session.Present(),
		Session:  st.Session,
	})
}

func (h *handlers) signOut(c echo.Context) error {
	if err := h.source.SignOut(c.Request().Context()); err != nil {
		var soErr *session.SignOutError
		if errors.As(err, &soErr) {
			return echo.NewHTTPError(http.StatusBadGateway, soErr.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
