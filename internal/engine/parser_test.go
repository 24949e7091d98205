package engine_test

import (
	"errors"
	"testing"

	"story-engine/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("variables and nodes", func(t *testing.T) {
		src := `
SET gold 3
SET name "Ann"
SET brave false
SET debt -7

=START "Hello, {name}! Gold: {gold}"
    "Go left" -> LEFT
    [IF gold > 2] "Buy a map" -> SHOP [THEN brave = true]
    [IF brave] "Fight" -> LEFT

=LEFT "The end."
=SHOP "A shop."
`
		prog, err := engine.Parse(src)
		require.NoError(t, err)

		require.Len(t, prog.Variables, 4)
		assert.Equal(t, "gold", prog.Variables[0].Name)
		assert.Equal(t, engine.IntValue(3), prog.Variables[0].Value)
		assert.Equal(t, engine.KindString, prog.Variables[1].Value.Kind)
		assert.Equal(t, "Ann", prog.Variables[1].Value.Str.Source())
		assert.Equal(t, engine.BoolValue(false), prog.Variables[2].Value)
		assert.Equal(t, engine.IntValue(-7), prog.Variables[3].Value)

		require.Len(t, prog.Nodes, 3)
		start := prog.Nodes[0]
		assert.Equal(t, "START", start.ID)
		assert.Equal(t, 7, start.Line)
		assert.Equal(t, engine.FormatString{
			{Text: "Hello, "}, {Text: "name", Ref: true}, {Text: "! Gold: "}, {Text: "gold", Ref: true},
		}, start.Text)

		require.Len(t, start.Choices, 3)
		assert.Nil(t, start.Choices[0].Requirement)
		assert.Nil(t, start.Choices[0].Command)
		assert.Equal(t, "LEFT", start.Choices[0].Target)

		assert.Equal(t, "(gold > 2)", start.Choices[1].Requirement.String())
		require.NotNil(t, start.Choices[1].Command)
		assert.Equal(t, "brave", start.Choices[1].Command.Target)
		assert.Equal(t, engine.BoolValue(true), start.Choices[1].Command.Value)

		assert.Equal(t, engine.NameExpr{Name: "brave"}, start.Choices[2].Requirement)
		assert.Empty(t, prog.Nodes[1].Choices)
	})

	t.Run("operators", func(t *testing.T) {
		src := `=START "x"
  [IF a != "b{c}"] "1" -> START
  [IF a = 1] "2" -> START
  [IF a < 1] "3" -> START`
		prog, err := engine.Parse(src)
		require.NoError(t, err)
		choices := prog.Nodes[0].Choices
		require.Len(t, choices, 3)
		assert.Equal(t, `(a != "b{c}")`, choices[0].Requirement.String())
		assert.Equal(t, "(a = 1)", choices[1].Requirement.String())
		assert.Equal(t, "(a < 1)", choices[2].Requirement.String())
	})

	t.Run("names that start like literals", func(t *testing.T) {
		prog, err := engine.Parse(`=START "x" [IF true_path] "go" -> 1st`)
		require.NoError(t, err)
		choice := prog.Nodes[0].Choices[0]
		assert.Equal(t, engine.NameExpr{Name: "true_path"}, choice.Requirement)
		assert.Equal(t, "1st", choice.Target)
	})

	t.Run("empty program", func(t *testing.T) {
		prog, err := engine.Parse("  \n\t ")
		require.NoError(t, err)
		assert.Empty(t, prog.Nodes)
		assert.Empty(t, prog.Variables)
	})
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name   string
		src    string
		line   int
		column int
	}{
		{name: "garbage at top level", src: "=START \"x\"\nhello", line: 2, column: 1},
		{name: "unterminated string", src: `=START "abc`, line: 1, column: 12},
		{name: "bad interpolation", src: `=START "a { b}"`, line: 1, column: 12},
		{name: "missing arrow", src: `=START "x" "go" LEFT`, line: 1, column: 17},
		{name: "missing target", src: `=START "x" "go" ->`, line: 1, column: 19},
		{name: "orphan THEN", src: `=START "x" [THEN a = 1]`, line: 1, column: 13},
		{name: "unclosed requirement", src: `=START "x" [IF a "go" -> B`, line: 1, column: 18},
		{name: "int overflow", src: `SET a 99999999999`, line: 1, column: 7},
		{name: "SET without space", src: `SETa 1`, line: 1, column: 4},
		{name: "SET without value", src: `SET a b`, line: 1, column: 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Parse(tc.src)
			require.Error(t, err)
			var syntaxErr *engine.SyntaxError
			require.True(t, errors.As(err, &syntaxErr), "expected *SyntaxError, got %T", err)
			assert.Equal(t, tc.line, syntaxErr.Line, err.Error())
			assert.Equal(t, tc.column, syntaxErr.Column, err.Error())
		})
	}
}

func TestParseFormatString(t *testing.T) {
	fs, err := engine.ParseFormatString("Gold: {gold} coins")
	require.NoError(t, err)
	assert.Equal(t, []string{"gold"}, fs.Refs())
	assert.Equal(t, "Gold: {gold} coins", fs.Source())

	_, err = engine.ParseFormatString(`say "hi"`)
	assert.Error(t, err)
}
