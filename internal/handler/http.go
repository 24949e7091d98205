package handler

import (
	"errors"
	"net/http"

	"story-engine/internal/models"
	"story-engine/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// GameHandler обрабатывает HTTP запросы к игровым сессиям.
type GameHandler struct {
	service  service.SessionService
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewGameHandler создает новый GameHandler.
// gatherer - реестр метрик для /metrics.
func NewGameHandler(s service.SessionService, gatherer prometheus.Gatherer, logger *zap.Logger) *GameHandler {
	return &GameHandler{
		service:  s,
		gatherer: gatherer,
		logger:   logger.Named("GameHandler"),
	}
}

// RegisterRoutes регистрирует маршруты под префиксом (например, "/api" или "").
func (h *GameHandler) RegisterRoutes(e *echo.Echo, prefix string) {
	g := e.Group(prefix)

	// --- Сессии (вариант 2) ---
	g.POST("/session", h.createSession)
	g.GET("/session/:session_id/current", h.getCurrent)
	g.POST("/session/:session_id/choose/:option", h.choose)
	g.POST("/clear_expired_sessions", h.clearExpiredSessions)

	// --- Глобальная игра (вариант 1) ---
	g.GET("/current", h.getGlobalCurrent)
	g.POST("/choose/:option", h.chooseGlobal)

	// --- Служебные ---
	g.GET("/health", h.health)
	g.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
}

func (h *GameHandler) createSession(c echo.Context) error {
	id, err := h.service.CreateSession(c.Request().Context())
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, models.CreateSessionResponse{SessionID: id})
}

func (h *GameHandler) getCurrent(c echo.Context) error {
	view, err := h.service.GetCurrent(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *GameHandler) choose(c echo.Context) error {
	result, err := h.service.Choose(c.Request().Context(), c.Param("session_id"), c.Param("option"))
	if err != nil {
		return handleServiceError(c, err)
	}
	return choiceResponse(c, result)
}

func (h *GameHandler) clearExpiredSessions(c echo.Context) error {
	removed, err := h.service.ClearExpiredSessions(c.Request().Context())
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, models.ClearExpiredResponse{Removed: removed})
}

func (h *GameHandler) getGlobalCurrent(c echo.Context) error {
	view, err := h.service.GetGlobalCurrent(c.Request().Context())
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *GameHandler) chooseGlobal(c echo.Context) error {
	result, err := h.service.ChooseGlobal(c.Request().Context(), c.Param("option"))
	if err != nil {
		return handleServiceError(c, err)
	}
	return choiceResponse(c, result)
}

func (h *GameHandler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, models.HealthResponse{Status: "ok"})
}

// choiceResponse: недопустимый вариант - это 400 с телом InvalidOption.
func choiceResponse(c echo.Context, result models.ChoiceResult) error {
	if !result.Success {
		return c.JSON(http.StatusBadRequest, result)
	}
	return c.JSON(http.StatusOK, result)
}

// handleServiceError преобразует ошибки сервиса в HTTP ответ.
func handleServiceError(c echo.Context, err error) error {
	var statusCode int
	var apiErr models.APIError

	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		statusCode = http.StatusNotFound
		apiErr = models.APIError{Error: models.ErrSessionNotFound.Error()}
	case errors.Is(err, models.ErrGlobalDisabled):
		statusCode = http.StatusNotFound
		apiErr = models.APIError{Error: models.ErrGlobalDisabled.Error()}
	case errors.Is(err, models.ErrSessionConflict):
		statusCode = http.StatusConflict
		apiErr = models.APIError{Error: models.ErrSessionConflict.Error()}
	default:
		statusCode = http.StatusInternalServerError
		apiErr = models.APIError{Error: models.ErrInternalServer.Error()}
	}
	return c.JSON(statusCode, apiErr)
}
