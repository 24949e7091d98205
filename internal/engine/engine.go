package engine

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"story-engine/internal/models"
)

// maxInterpolationDepth ограничивает вложенность подстановок: строковая
// переменная может ссылаться на другую строковую переменную.
const maxInterpolationDepth = 32

// Engine - неизменяемые данные истории. Загружается один раз при старте
// и используется всеми сессиями одновременно.
type Engine struct {
	defaults map[string]Value
	nodes    map[string]*Node
}

// FromProgram разбирает и проверяет сценарий.
// Возвращает *SyntaxError или ValidationErrors.
func FromProgram(source string) (*Engine, error) {
	prog, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return New(prog)
}

// New строит движок из уже разобранной программы.
func New(prog *Program) (*Engine, error) {
	e := &Engine{
		defaults: make(map[string]Value, len(prog.Variables)),
		nodes:    make(map[string]*Node, len(prog.Nodes)),
	}

	var errs ValidationErrors
	for _, def := range prog.Variables {
		if _, exists := e.defaults[def.Name]; exists {
			errs = append(errs, ValidationError{Kind: DuplicateVariable, Name: def.Name})
			continue
		}
		e.defaults[def.Name] = def.Value
	}
	for i := range prog.Nodes {
		node := &prog.Nodes[i]
		if _, exists := e.nodes[node.ID]; exists {
			errs = append(errs, ValidationError{Kind: DuplicateNode, NodeID: node.ID})
			continue
		}
		e.nodes[node.ID] = node
	}

	errs = append(errs, e.validate(prog)...)
	if len(errs) > 0 {
		return nil, errs
	}
	return e, nil
}

// NodeCount возвращает число узлов истории.
func (e *Engine) NodeCount() int { return len(e.nodes) }

// VariableCount возвращает число объявленных переменных.
func (e *Engine) VariableCount() int { return len(e.defaults) }

// NewSession создает сессию в начале истории.
func (e *Engine) NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		NodeID:       StartNodeID,
		Variables:    maps.Clone(e.defaults),
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

func (e *Engine) currentNode(s *Session) (*Node, error) {
	node, ok := e.nodes[s.NodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, s.NodeID)
	}
	return node, nil
}

// IsGameOver - игра окончена, когда в текущем узле нет ни одного варианта.
func (e *Engine) IsGameOver(s *Session) (bool, error) {
	node, err := e.currentNode(s)
	if err != nil {
		return false, err
	}
	return len(node.Choices) == 0, nil
}

// CurrentView возвращает то, что видит игрок: текст узла и доступные варианты.
// Варианты с ложным условием скрываются, но game_over зависит только от того,
// есть ли у узла варианты вообще.
func (e *Engine) CurrentView(s *Session) (*models.CurrentNodeView, error) {
	node, err := e.currentNode(s)
	if err != nil {
		return nil, err
	}

	text, err := e.evalString(s.Variables, node.Text, 0)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", node.ID, err)
	}

	choices, err := e.visibleChoices(s, node)
	if err != nil {
		return nil, err
	}

	view := &models.CurrentNodeView{
		DisplayText: text,
		Choices:     make([]models.ChoiceView, 0, len(choices)),
		GameOver:    len(node.Choices) == 0,
	}
	for _, choice := range choices {
		choiceText, err := e.evalString(s.Variables, choice.Text, 0)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", node.ID, err)
		}
		view.Choices = append(view.Choices, models.ChoiceView{
			ID:          choice.Target,
			DisplayText: choiceText,
		})
	}
	return view, nil
}

func (e *Engine) visibleChoices(s *Session, node *Node) ([]*Choice, error) {
	visible := make([]*Choice, 0, len(node.Choices))
	for i := range node.Choices {
		choice := &node.Choices[i]
		if choice.Requirement != nil {
			v, err := e.eval(s.Variables, choice.Requirement)
			if err != nil {
				return nil, fmt.Errorf("node %s: requirement %s: %w", node.ID, choice.Requirement, err)
			}
			ok, err := e.truthy(s.Variables, v)
			if err != nil {
				return nil, fmt.Errorf("node %s: requirement %s: %w", node.ID, choice.Requirement, err)
			}
			if !ok {
				continue
			}
		}
		visible = append(visible, choice)
	}
	return visible, nil
}

// Choose применяет выбор игрока. option - id целевого узла одного из
// видимых вариантов. Неизвестный или скрытый вариант не меняет сессию.
func (e *Engine) Choose(s *Session, option string) (models.ChoiceResult, error) {
	node, err := e.currentNode(s)
	if err != nil {
		return models.ChoiceResult{}, err
	}
	choices, err := e.visibleChoices(s, node)
	if err != nil {
		return models.ChoiceResult{}, err
	}

	for _, choice := range choices {
		if choice.Target != option {
			continue
		}
		if choice.Command != nil {
			if s.Variables == nil {
				s.Variables = make(map[string]Value)
			}
			s.Variables[choice.Command.Target] = choice.Command.Value
		}
		s.NodeID = option
		return models.ChoiceSuccess(), nil
	}

	return models.InvalidOption(s.NodeID, option), nil
}

func (e *Engine) evalString(vars map[string]Value, fs FormatString, depth int) (string, error) {
	if depth > maxInterpolationDepth {
		return "", ErrRecursiveString
	}
	var b strings.Builder
	for _, part := range fs {
		if !part.Ref {
			b.WriteString(part.Text)
			continue
		}
		v, ok := vars[part.Text]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownVariable, part.Text)
		}
		s, err := e.valueString(vars, v, depth+1)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

func (e *Engine) valueString(vars map[string]Value, v Value, depth int) (string, error) {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool), nil
	case KindInt:
		return strconv.FormatInt(int64(v.Int), 10), nil
	default:
		return e.evalString(vars, v.Str, depth)
	}
}

func (e *Engine) eval(vars map[string]Value, expr Expression) (Value, error) {
	switch x := expr.(type) {
	case LiteralExpr:
		return x.Value, nil
	case NameExpr:
		v, ok := vars[x.Name]
		if !ok {
			return Value{}, fmt.Errorf("%w: %s", ErrUnknownVariable, x.Name)
		}
		return v, nil
	case BinaryExpr:
		left, err := e.eval(vars, x.Left)
		if err != nil {
			return Value{}, err
		}
		right, err := e.eval(vars, x.Right)
		if err != nil {
			return Value{}, err
		}
		switch x.Op {
		case OpEquals, OpNotEquals:
			eq, err := e.equal(vars, left, right)
			if err != nil {
				return Value{}, err
			}
			return BoolValue(eq == (x.Op == OpEquals)), nil
		case OpGreaterThan, OpLessThan:
			if left.Kind != KindInt || right.Kind != KindInt {
				return Value{}, fmt.Errorf("%w: %s needs integers, got %s and %s", ErrTypeMismatch, x.Op, left.Kind, right.Kind)
			}
			if x.Op == OpGreaterThan {
				return BoolValue(left.Int > right.Int), nil
			}
			return BoolValue(left.Int < right.Int), nil
		}
	}
	return Value{}, fmt.Errorf("unsupported expression %T", expr)
}

// equal: значения разных типов никогда не равны; строки сравниваются после подстановки.
func (e *Engine) equal(vars map[string]Value, left, right Value) (bool, error) {
	if left.Kind != right.Kind {
		return false, nil
	}
	switch left.Kind {
	case KindBool:
		return left.Bool == right.Bool, nil
	case KindInt:
		return left.Int == right.Int, nil
	default:
		l, err := e.evalString(vars, left.Str, 0)
		if err != nil {
			return false, err
		}
		r, err := e.evalString(vars, right.Str, 0)
		if err != nil {
			return false, err
		}
		return l == r, nil
	}
}

func (e *Engine) truthy(vars map[string]Value, v Value) (bool, error) {
	switch v.Kind {
	case KindBool:
		return v.Bool, nil
	case KindInt:
		return v.Int != 0, nil
	default:
		s, err := e.evalString(vars, v.Str, 0)
		if err != nil {
			return false, err
		}
		return s != "", nil
	}
}
