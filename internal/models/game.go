package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChoiceView - вариант выбора в том виде, в котором его видит игрок.
type ChoiceView struct {
	DisplayText string `json:"display_text"`
	ID          string `json:"id"`
}

// CurrentNodeView - текущее состояние игры.
type CurrentNodeView struct {
	DisplayText string       `json:"display_text"`
	Choices     []ChoiceView `json:"choices"`
	GameOver    bool         `json:"game_over"`
}

// CreateSessionResponse - ответ на POST /session.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// ChoiceResult - результат выбора.
// На проводе: "Success" или {"InvalidOption": {"current_node_id": ..., "chosen_option": ...}}.
type ChoiceResult struct {
	Success       bool
	CurrentNodeID string
	ChosenOption  string
}

func ChoiceSuccess() ChoiceResult {
	return ChoiceResult{Success: true}
}

func InvalidOption(currentNodeID, chosenOption string) ChoiceResult {
	return ChoiceResult{CurrentNodeID: currentNodeID, ChosenOption: chosenOption}
}

type invalidOptionBody struct {
	CurrentNodeID string `json:"current_node_id"`
	ChosenOption  string `json:"chosen_option"`
}

const choiceSuccessTag = "Success"

func (r ChoiceResult) MarshalJSON() ([]byte, error) {
	if r.Success {
		return json.Marshal(choiceSuccessTag)
	}
	return json.Marshal(map[string]invalidOptionBody{
		"InvalidOption": {CurrentNodeID: r.CurrentNodeID, ChosenOption: r.ChosenOption},
	})
}

func (r *ChoiceResult) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag != choiceSuccessTag {
			return fmt.Errorf("unknown choice result %q", tag)
		}
		*r = ChoiceSuccess()
		return nil
	}

	var tagged map[string]invalidOptionBody
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("decode choice result: %w", err)
	}
	body, ok := tagged["InvalidOption"]
	if !ok {
		return fmt.Errorf("unknown choice result %s", data)
	}
	*r = InvalidOption(body.CurrentNodeID, body.ChosenOption)
	return nil
}

// ClearExpiredResponse - ответ на POST /clear_expired_sessions.
type ClearExpiredResponse struct {
	Removed int `json:"removed"`
}

// HealthResponse - ответ на GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// APIError - стандартное тело ответа об ошибке.
type APIError struct {
	Error string `json:"error"`
}

// SessionEventType - тип события сессии, публикуемого в очередь.
type SessionEventType string

const (
	EventSessionCreated SessionEventType = "session_created"
	EventChoiceMade     SessionEventType = "choice_made"
	EventGameOver       SessionEventType = "game_over"
	EventSessionExpired SessionEventType = "session_expired"
)

// SessionEvent - сообщение о событии сессии для внешних потребителей (аналитика и т.п.).
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	SessionID string           `json:"session_id"`
	NodeID    string           `json:"node_id,omitempty"`
	Option    string           `json:"option,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
