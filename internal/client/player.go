package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const prompt = "Enter your choice: "

// ErrInvalidInput - ввод игрока не номер пункта меню.
var ErrInvalidInput = errors.New("invalid choice")

// Player - консольный цикл игры: показать состояние, прочитать номер, отправить выбор.
type Player struct {
	game Game
	in   *bufio.Reader
	out  io.Writer
}

func NewPlayer(game Game, in io.Reader, out io.Writer) *Player {
	return &Player{game: game, in: bufio.NewReader(in), out: out}
}

// Run играет до game_over. Любая ошибка завершает партию.
func (p *Player) Run(ctx context.Context) error {
	if _, err := fmt.Fprintln(p.out, "GAME"); err != nil {
		return err
	}

	for {
		view, err := p.game.Current(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch current state: %w", err)
		}

		var b strings.Builder
		b.WriteString("\n")
		b.WriteString(view.DisplayText)
		b.WriteString("\n\n")
		for i, choice := range view.Choices {
			fmt.Fprintf(&b, "%d. %s\n", i+1, choice.DisplayText)
		}
		b.WriteString("\n")
		if _, err := io.WriteString(p.out, b.String()); err != nil {
			return err
		}

		if view.GameOver {
			return nil
		}

		n, err := p.readChoice(len(view.Choices))
		if err != nil {
			return err
		}
		if err := p.game.Choose(ctx, view.Choices[n-1].ID); err != nil {
			return fmt.Errorf("failed to submit choice: %w", err)
		}
	}
}

// readChoice читает номер пункта от 1 до count.
func (p *Player) readChoice(count int) (int, error) {
	if _, err := io.WriteString(p.out, prompt); err != nil {
		return 0, err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return 0, fmt.Errorf("failed to read choice: %w", err)
	}

	n, convErr := strconv.Atoi(strings.TrimSpace(line))
	if convErr != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidInput, strings.TrimSpace(line))
	}
	if n < 1 || n > count {
		return 0, fmt.Errorf("%w: %d is out of range 1..%d", ErrInvalidInput, n, count)
	}
	return n, nil
}
