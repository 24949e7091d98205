package engine

import (
	"errors"
	"fmt"
	"strings"
)

// StartNodeID - обязательная точка входа любой истории.
const StartNodeID = "START"

var (
	ErrUnknownNode     = errors.New("session points to an unknown node")
	ErrUnknownVariable = errors.New("unknown variable")
	ErrTypeMismatch    = errors.New("operator applied to values of the wrong type")
	ErrRecursiveString = errors.New("string interpolation is too deep (reference cycle?)")
)

// SyntaxError - ошибка разбора сценария с позицией.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d:%d: %s", e.Line, e.Column, e.Msg)
}

// ValidationErrorKind классифицирует ошибки проверки сценария.
type ValidationErrorKind int

const (
	MissingStartNode ValidationErrorKind = iota
	BadReferenceInOption
	BadReferenceInString
	BadReferenceInExpression
	InvalidExpression
	BadReferenceInCommand
	InvalidCommand
	BadReferenceInVariable
	DuplicateNode
	DuplicateVariable
)

// ValidationError - одна семантическая ошибка сценария.
type ValidationError struct {
	Kind   ValidationErrorKind
	NodeID string // узел, в котором найдена ошибка
	Name   string // проблемное имя (узел или переменная)
	Detail string // текст выражения или команды
}

func (e ValidationError) Error() string {
	switch e.Kind {
	case MissingStartNode:
		return "Your program is missing a 'START' node, which is required as the entry point of the game."
	case BadReferenceInOption:
		return fmt.Sprintf("The node with id '%s' contains an option that references a non-existent node with id '%s'.", e.NodeID, e.Name)
	case BadReferenceInString:
		return fmt.Sprintf("The node with id '%s' contains a string that references a non-existent variable with name '%s'.", e.NodeID, e.Name)
	case BadReferenceInExpression:
		return fmt.Sprintf("The node with id '%s' contains an expression that references a non-existent variable with name '%s'.", e.NodeID, e.Name)
	case InvalidExpression:
		return fmt.Sprintf("The node with id '%s' contains an expression that is invalid: %s.", e.NodeID, e.Detail)
	case BadReferenceInCommand:
		return fmt.Sprintf("The node with id '%s' contains a command that references a non-existent variable with name '%s'.", e.NodeID, e.Name)
	case InvalidCommand:
		return fmt.Sprintf("The node with id '%s' contains a command that is invalid: '%s'.", e.NodeID, e.Detail)
	case BadReferenceInVariable:
		return fmt.Sprintf("The variable '%s' has a default value that references a non-existent variable with name '%s'.", e.NodeID, e.Name)
	case DuplicateNode:
		return fmt.Sprintf("The node with id '%s' is defined more than once.", e.NodeID)
	case DuplicateVariable:
		return fmt.Sprintf("The variable with name '%s' is defined more than once.", e.Name)
	default:
		return "unknown validation error"
	}
}

// ValidationErrors - все ошибки проверки сразу, чтобы автор сценария
// мог исправить их за один проход.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "\n")
}
