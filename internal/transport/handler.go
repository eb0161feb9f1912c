// Package transport exposes the engine to the browser dashboard over
// HTTP/JSON and WebSocket.
package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/vaultwatch/vaultwatch-backend/internal/model"
	"github.com/vaultwatch/vaultwatch-backend/internal/service/engine"
)

// Engine is the surface the handlers drive.
type Engine interface {
	Session() engine.SessionInfo
	CurrentSnapshot() engine.Snapshot
	RefreshAll(ctx context.Context) error
	CreateVault(ctx context.Context, priceStr, datetimeStr string) (model.VaultRef, error)
	WithdrawVault(ctx context.Context, address string) error
	RemoveVault(ctx context.Context, address string) error
	TrackVault(ctx context.Context, address string) (bool, error)
}

// Handler wires the engine into echo routes.
type Handler struct {
	engine Engine
	hub    *Hub
	logger *zap.Logger
}

// NewHandler returns a Handler instance.
func NewHandler(eng Engine, hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{engine: eng, hub: hub, logger: logger.Named("http")}
}

// Register mounts all routes on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.health)
	e.GET("/ws", h.ws)

	api := e.Group("/api")
	api.GET("/session", h.session)
	api.GET("/locks", h.locks)
	api.GET("/price", h.price)
	api.POST("/refresh", h.refresh)
	api.POST("/vaults", h.createVault)
	api.POST("/vaults/track", h.trackVault)
	api.POST("/vaults/:address/withdraw", h.withdrawVault)
	api.DELETE("/vaults/:address", h.removeVault)
}

func (h *Handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "service": "vaultwatch"})
}

func (h *Handler) ws(c echo.Context) error {
	return h.hub.serve(c.Response(), c.Request())
}

func (h *Handler) session(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.Session())
}

func (h *Handler) locks(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.CurrentSnapshot())
}

func (h *Handler) price(c echo.Context) error {
	snapshot := h.engine.CurrentSnapshot()
	return c.JSON(http.StatusOK, snapshot.Price)
}

func (h *Handler) refresh(c echo.Context) error {
	if err := h.engine.RefreshAll(c.Request().Context()); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.engine.CurrentSnapshot())
}

type createVaultRequest struct {
	TargetPrice    string `json:"targetPrice"`
	UnlockDatetime string `json:"unlockDatetime"`
}

func (h *Handler) createVault(c echo.Context) error {
	var req createVaultRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body", "code": "invalid_input"})
	}

	ref, err := h.engine.CreateVault(c.Request().Context(), req.TargetPrice, req.UnlockDatetime)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, ref)
}

type trackVaultRequest struct {
	Address string `json:"address"`
}

func (h *Handler) trackVault(c echo.Context) error {
	var req trackVaultRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body", "code": "invalid_input"})
	}

	added, err := h.engine.TrackVault(c.Request().Context(), req.Address)
	if err != nil {
		return h.fail(c, err)
	}
	if !added {
		return c.JSON(http.StatusOK, echo.Map{"added": false, "detail": "already tracked"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"added": true})
}

func (h *Handler) withdrawVault(c echo.Context) error {
	if err := h.engine.WithdrawVault(c.Request().Context(), c.Param("address")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"withdrawn": true})
}

func (h *Handler) removeVault(c echo.Context) error {
	if err := h.engine.RemoveVault(c.Request().Context(), c.Param("address")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// fail maps the engine error taxonomy onto HTTP statuses. Address
// resolution failures get their own code: the transaction did succeed on
// chain and the client has to say so.
func (h *Handler) fail(c echo.Context, err error) error {
	var (
		code   = "internal"
		status = http.StatusInternalServerError
	)
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		code, status = "invalid_input", http.StatusBadRequest
	case errors.Is(err, model.ErrBusy):
		code, status = "busy", http.StatusConflict
	case errors.Is(err, model.ErrNotConnected):
		code, status = "not_connected", http.StatusServiceUnavailable
	case errors.Is(err, model.ErrAddressUnresolved):
		code, status = "address_unresolved", http.StatusBadGateway
	case errors.Is(err, model.ErrTransactionFailed):
		code, status = "transaction_failed", http.StatusBadGateway
	case errors.Is(err, model.ErrConnectionFailed):
		code, status = "connection_failed", http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, echo.Map{"error": err.Error(), "code": code})
}
