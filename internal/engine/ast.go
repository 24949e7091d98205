package engine

import (
	"fmt"
	"strings"
)

// FormatPart - часть строки с подстановками: либо литерал, либо ссылка {name}.
type FormatPart struct {
	Text string
	Ref  bool
}

// FormatString - строка сценария. Подстановки вычисляются лениво, в момент показа.
type FormatString []FormatPart

// Refs возвращает имена всех переменных, на которые ссылается строка.
func (fs FormatString) Refs() []string {
	var names []string
	for _, part := range fs {
		if part.Ref {
			names = append(names, part.Text)
		}
	}
	return names
}

// Source восстанавливает исходный вид строки без кавычек.
// Литерал не может содержать '"' и '{', поэтому запись однозначна.
func (fs FormatString) Source() string {
	var b strings.Builder
	for _, part := range fs {
		if part.Ref {
			b.WriteString("{" + part.Text + "}")
		} else {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// ValueKind - тип значения переменной.
type ValueKind int

const (
	KindBool ValueKind = iota
	KindInt
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// Value - значение переменной или литерал в выражении.
type Value struct {
	Kind ValueKind
	Bool bool
	Int  int32
	Str  FormatString
}

func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int32) Value { return Value{Kind: KindInt, Int: i} }
func StringValue(s FormatString) Value { return Value{Kind: KindString, Str: s} }

// String возвращает значение в синтаксисе сценария.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	default:
		return `"` + v.Str.Source() + `"`
	}
}

// Expression - условие показа варианта ([IF ...]).
type Expression interface {
	fmt.Stringer
	expression()
}

// LiteralExpr - константа.
type LiteralExpr struct {
	Value Value
}

// NameExpr - ссылка на переменную.
type NameExpr struct {
	Name string
}

// Operator - бинарный оператор сравнения.
type Operator string

const (
	OpEquals      Operator = "="
	OpNotEquals   Operator = "!="
	OpGreaterThan Operator = ">"
	OpLessThan    Operator = "<"
)

// BinaryExpr - сравнение двух первичных выражений.
type BinaryExpr struct {
	Op    Operator
	Left  Expression
	Right Expression
}

func (LiteralExpr) expression() {}
func (NameExpr) expression() {}
func (BinaryExpr) expression() {}

func (e LiteralExpr) String() string { return e.Value.String() }
func (e NameExpr) String() string { return e.Name }
func (e BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

// Command - действие, выполняемое при выборе варианта ([THEN name = value]).
// Пока поддерживается только присваивание.
type Command struct {
	Target string
	Value  Value
}

func (c Command) String() string {
	return fmt.Sprintf("SET %s %s", c.Target, c.Value)
}

// Choice - вариант выбора внутри узла.
type Choice struct {
	Requirement Expression // nil, если условия нет
	Text        FormatString
	Target      string
	Command     *Command
}

// Node - узел истории.
type Node struct {
	ID      string
	Text    FormatString
	Choices []Choice
	Line    int
}

// VariableDef - объявление переменной со значением по умолчанию.
type VariableDef struct {
	Name  string
	Value Value
	Line  int
}

// Program - результат разбора сценария, в порядке объявления.
type Program struct {
	Variables []VariableDef
	Nodes     []Node
}
