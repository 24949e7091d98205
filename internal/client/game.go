package client

import (
	"context"
	"fmt"

	"story-engine/internal/models"
)

// Game - одна партия на сервере: глобальная или в отдельной сессии.
type Game interface {
	Current(ctx context.Context) (*models.CurrentNodeView, error)
	Choose(ctx context.Context, choiceID string) error
}

type remoteGame struct {
	api       *HTTPClient
	sessionID string
}

// NewGlobalGame - общая игра сервера без сессии.
func NewGlobalGame(api *HTTPClient) Game {
	return &remoteGame{api: api}
}

// StartSession создает новую сессию; все запросы партии идут с ее id.
func StartSession(ctx context.Context, api *HTTPClient) (Game, error) {
	id, err := api.CreateSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return &remoteGame{api: api, sessionID: id}, nil
}

func (g *remoteGame) Current(ctx context.Context) (*models.CurrentNodeView, error) {
	return g.api.GetCurrent(ctx, g.sessionID)
}

func (g *remoteGame) Choose(ctx context.Context, choiceID string) error {
	result, err := g.api.Choose(ctx, g.sessionID, choiceID)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("server rejected option %q at node %q", result.ChosenOption, result.CurrentNodeID)
	}
	return nil
}
