package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"story-engine/internal/models"

	"go.uber.org/zap"
)

// maxErrorBody - сколько байт тела ошибки читаем для сообщения.
const maxErrorBody = 4096

// APIError - ответ сервера со статусом вне 2xx.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// HTTPClient - клиент REST API сервера историй.
// Пустой sessionID означает глобальную игру (/current, /choose/{id}).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient создает клиент; baseURL вида http://localhost:8080/prefix.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("HTTPClient"),
	}
}

// CreateSession вызывает POST /session.
func (c *HTTPClient) CreateSession(ctx context.Context) (string, error) {
	var resp models.CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, "/session", &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", errors.New("server returned an empty session id")
	}
	c.logger.Debug("Session created", zap.String("sessionID", resp.SessionID))
	return resp.SessionID, nil
}

// GetCurrent возвращает текущее состояние игры.
func (c *HTTPClient) GetCurrent(ctx context.Context, sessionID string) (*models.CurrentNodeView, error) {
	var view models.CurrentNodeView
	if err := c.do(ctx, http.MethodGet, currentPath(sessionID), &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Choose отправляет выбранный вариант.
func (c *HTTPClient) Choose(ctx context.Context, sessionID, choiceID string) (models.ChoiceResult, error) {
	var result models.ChoiceResult
	if err := c.do(ctx, http.MethodPost, choosePath(sessionID, choiceID), &result); err != nil {
		return models.ChoiceResult{}, err
	}
	return result, nil
}

func currentPath(sessionID string) string {
	if sessionID == "" {
		return "/current"
	}
	return "/session/" + url.PathEscape(sessionID) + "/current"
}

func choosePath(sessionID, choiceID string) string {
	if sessionID == "" {
		return "/choose/" + url.PathEscape(choiceID)
	}
	return "/session/" + url.PathEscape(sessionID) + "/choose/" + url.PathEscape(choiceID)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, out any) error {
	endpointURL := c.baseURL + path
	log := c.logger.With(zap.String("method", method), zap.String("url", endpointURL))

	req, err := http.NewRequestWithContext(ctx, method, endpointURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request to %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("Request failed", zap.Error(err))
		return fmt.Errorf("failed to execute %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
		log.Warn("Server returned non-2xx status", zap.Int("status_code", resp.StatusCode), zap.String("message", apiErr.Message))
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Error("Failed to decode response", zap.Error(err))
		return fmt.Errorf("failed to decode response of %s %s: %w", method, path, err)
	}
	return nil
}

// readErrorMessage берет поле "error" из тела, иначе само тело.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return fmt.Sprintf("failed to read error body: %v", err)
	}
	var apiErr models.APIError
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		return apiErr.Error
	}
	return strings.TrimSpace(string(data))
}
