package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse разбирает текст сценария.
//
// Сценарий состоит из объявлений переменных и узлов:
//
//	SET gold 0
//	=START "You stand at a crossroads. Gold: {gold}"
//	    "Go left" -> LEFT
//	    [IF gold > 2] "Buy a map" -> SHOP [THEN has_map = true]
//
// Любой текст, который не удалось разобрать, считается ошибкой.
func Parse(source string) (*Program, error) {
	p := &parser{src: source}
	prog := &Program{}

	for {
		p.skipSpace()
		if p.eof() {
			return prog, nil
		}

		line := p.line()
		switch {
		case p.peek() == '=':
			node, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			node.Line = line
			prog.Nodes = append(prog.Nodes, *node)
		case strings.HasPrefix(p.rest(), "SET"):
			def, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			def.Line = line
			prog.Variables = append(prog.Variables, *def)
		default:
			return nil, p.errorf("expected a node definition ('=ID') or a variable definition ('SET name value')")
		}
	}
}

// ParseFormatString разбирает содержимое строки без окружающих кавычек.
func ParseFormatString(s string) (FormatString, error) {
	p := &parser{src: `"` + s + `"`}
	fs, err := p.parseFormatString()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, p.errorf("unexpected '\"' inside string")
	}
	return fs, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }
func (p *parser) rest() string { return p.src[p.pos:] }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) line() int {
	return strings.Count(p.src[:p.pos], "\n") + 1
}

func (p *parser) errorf(format string, args ...any) error {
	consumed := p.src[:p.pos]
	col := p.pos - strings.LastIndexByte(consumed, '\n')
	return &SyntaxError{
		Line:   strings.Count(consumed, "\n") + 1,
		Column: col,
		Msg:    fmt.Sprintf(format, args...),
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isNameChar(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func (p *parser) skipSpace() int {
	start := p.pos
	for !p.eof() && isSpace(p.src[p.pos]) {
		p.pos++
	}
	return p.pos - start
}

func (p *parser) consume(token string) bool {
	if strings.HasPrefix(p.rest(), token) {
		p.pos += len(token)
		return true
	}
	return false
}

func (p *parser) expect(token string) error {
	if !p.consume(token) {
		return p.errorf("expected '%s'", token)
	}
	return nil
}

func (p *parser) parseName() (string, error) {
	start := p.pos
	for !p.eof() && isNameChar(p.src[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return "", p.errorf("expected a name ([A-Za-z0-9_]+)")
	}
	return p.src[start:p.pos], nil
}

// parseVariable: SET name value
func (p *parser) parseVariable() (*VariableDef, error) {
	if err := p.expect("SET"); err != nil {
		return nil, err
	}
	if p.skipSpace() == 0 {
		return nil, p.errorf("expected whitespace after 'SET'")
	}
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	if p.skipSpace() == 0 {
		return nil, p.errorf("expected whitespace after variable name '%s'", name)
	}
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &VariableDef{Name: name, Value: value}, nil
}

// parseNode: =ID "text" choice*
func (p *parser) parseNode() (*Node, error) {
	if err := p.expect("="); err != nil {
		return nil, err
	}
	p.skipSpace()
	id, err := p.parseName()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	text, err := p.parseFormatString()
	if err != nil {
		return nil, err
	}

	node := &Node{ID: id, Text: text}
	for {
		p.skipSpace()
		if c := p.peek(); c != '"' && c != '[' {
			return node, nil
		}
		choice, err := p.parseChoice()
		if err != nil {
			return nil, err
		}
		node.Choices = append(node.Choices, *choice)
	}
}

// parseChoice: [IF expr]? "text" -> TARGET [THEN name = value]?
func (p *parser) parseChoice() (*Choice, error) {
	choice := &Choice{}

	if p.peek() == '[' {
		req, err := p.parseRequirement()
		if err != nil {
			return nil, err
		}
		choice.Requirement = req
		p.skipSpace()
	}

	text, err := p.parseFormatString()
	if err != nil {
		return nil, err
	}
	choice.Text = text

	p.skipSpace()
	if err := p.expect("->"); err != nil {
		return nil, err
	}
	p.skipSpace()
	if choice.Target, err = p.parseName(); err != nil {
		return nil, err
	}

	// '[' после цели - это либо команда, либо условие следующего варианта.
	save := p.pos
	p.skipSpace()
	if strings.HasPrefix(p.rest(), "[") && p.isCommandAhead() {
		cmd, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		choice.Command = cmd
	} else {
		p.pos = save
	}

	return choice, nil
}

// isCommandAhead отличает "[THEN ..." от "[IF ..." следующего варианта.
func (p *parser) isCommandAhead() bool {
	rest := strings.TrimLeft(p.rest()[1:], " \t\r\n")
	return strings.HasPrefix(rest, "THEN")
}

func (p *parser) parseRequirement() (Expression, error) {
	if err := p.expect("["); err != nil {
		return nil, err
	}
	p.skipSpace()
	if err := p.expect("IF"); err != nil {
		return nil, err
	}
	p.skipSpace()
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if err := p.expect("]"); err != nil {
		return nil, err
	}
	return expr, nil
}

func (p *parser) parseCommand() (*Command, error) {
	if err := p.expect("["); err != nil {
		return nil, err
	}
	p.skipSpace()
	if err := p.expect("THEN"); err != nil {
		return nil, err
	}
	p.skipSpace()
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if err := p.expect("="); err != nil {
		return nil, err
	}
	p.skipSpace()
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if err := p.expect("]"); err != nil {
		return nil, err
	}
	return &Command{Target: name, Value: value}, nil
}

// parseExpression: primary (op primary)?
func (p *parser) parseExpression() (Expression, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	save := p.pos
	p.skipSpace()
	var op Operator
	switch {
	case p.consume("!="):
		op = OpNotEquals
	case p.consume("="):
		op = OpEquals
	case p.consume(">"):
		op = OpGreaterThan
	case p.consume("<"):
		op = OpLessThan
	default:
		p.pos = save
		return left, nil
	}

	p.skipSpace()
	right, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return BinaryExpr{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parsePrimary() (Expression, error) {
	if p.valueAhead() {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return LiteralExpr{Value: v}, nil
	}
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	return NameExpr{Name: name}, nil
}

// valueAhead сообщает, начинается ли с текущей позиции литерал, а не имя.
// "true_path" и "1st" - имена, а не литералы.
func (p *parser) valueAhead() bool {
	if p.peek() == '"' {
		return true
	}
	if p.keywordAhead("true") || p.keywordAhead("false") {
		return true
	}
	_, n := p.scanInt()
	return n > 0
}

func (p *parser) keywordAhead(word string) bool {
	rest := p.rest()
	if !strings.HasPrefix(rest, word) {
		return false
	}
	return len(rest) == len(word) || !isNameChar(rest[len(word)])
}

// scanInt возвращает длину целочисленного литерала (со знаком) без его разбора.
func (p *parser) scanInt() (string, int) {
	rest := p.rest()
	i := 0
	if i < len(rest) && (rest[i] == '-' || rest[i] == '+') {
		i++
	}
	digits := i
	for i < len(rest) && '0' <= rest[i] && rest[i] <= '9' {
		i++
	}
	if i == digits {
		return "", 0
	}
	if i < len(rest) && isNameChar(rest[i]) {
		return "", 0
	}
	return rest[:i], i
}

func (p *parser) parseValue() (Value, error) {
	switch {
	case p.keywordAhead("true"):
		p.pos += len("true")
		return BoolValue(true), nil
	case p.keywordAhead("false"):
		p.pos += len("false")
		return BoolValue(false), nil
	case p.peek() == '"':
		fs, err := p.parseFormatString()
		if err != nil {
			return Value{}, err
		}
		return StringValue(fs), nil
	}

	lit, n := p.scanInt()
	if n == 0 {
		return Value{}, p.errorf("expected a value (true, false, integer or string)")
	}
	i, err := strconv.ParseInt(lit, 10, 32)
	if err != nil {
		return Value{}, p.errorf("integer %s is out of range for int32", lit)
	}
	p.pos += n
	return IntValue(int32(i)), nil
}

func (p *parser) parseFormatString() (FormatString, error) {
	if err := p.expect(`"`); err != nil {
		return nil, err
	}

	fs := FormatString{}
	for {
		if p.eof() {
			return nil, p.errorf("unterminated string")
		}
		switch p.peek() {
		case '"':
			p.pos++
			return fs, nil
		case '{':
			p.pos++
			name, err := p.parseName()
			if err != nil {
				return nil, err
			}
			if err := p.expect("}"); err != nil {
				return nil, err
			}
			fs = append(fs, FormatPart{Text: name, Ref: true})
		default:
			start := p.pos
			for !p.eof() && p.src[p.pos] != '"' && p.src[p.pos] != '{' {
				p.pos++
			}
			fs = append(fs, FormatPart{Text: p.src[start:p.pos]})
		}
	}
}
