package engine

// validate собирает все семантические ошибки программы. Ошибки выдаются
// в порядке объявления, чтобы вывод был стабильным.
func (e *Engine) validate(prog *Program) ValidationErrors {
	var errs ValidationErrors

	if _, ok := e.nodes[StartNodeID]; !ok {
		errs = append(errs, ValidationError{Kind: MissingStartNode})
	}

	for _, def := range prog.Variables {
		if def.Value.Kind != KindString {
			continue
		}
		for _, name := range e.unknownRefs(def.Value.Str) {
			errs = append(errs, ValidationError{Kind: BadReferenceInVariable, NodeID: def.Name, Name: name})
		}
	}

	for _, node := range prog.Nodes {
		for _, name := range e.unknownRefs(node.Text) {
			errs = append(errs, ValidationError{Kind: BadReferenceInString, NodeID: node.ID, Name: name})
		}

		for _, choice := range node.Choices {
			for _, name := range e.unknownRefs(choice.Text) {
				errs = append(errs, ValidationError{Kind: BadReferenceInString, NodeID: node.ID, Name: name})
			}

			if _, ok := e.nodes[choice.Target]; !ok {
				errs = append(errs, ValidationError{Kind: BadReferenceInOption, NodeID: node.ID, Name: choice.Target})
			}

			if choice.Requirement != nil {
				for _, name := range e.unknownNamesInExpression(choice.Requirement) {
					errs = append(errs, ValidationError{Kind: BadReferenceInExpression, NodeID: node.ID, Name: name})
				}
				if !e.expressionIsValid(choice.Requirement) {
					errs = append(errs, ValidationError{Kind: InvalidExpression, NodeID: node.ID, Detail: choice.Requirement.String()})
				}
			}

			if choice.Command != nil {
				for _, name := range e.unknownNamesInCommand(choice.Command) {
					errs = append(errs, ValidationError{Kind: BadReferenceInCommand, NodeID: node.ID, Name: name})
				}
				if !e.commandIsValid(choice.Command) {
					errs = append(errs, ValidationError{Kind: InvalidCommand, NodeID: node.ID, Detail: choice.Command.String()})
				}
			}
		}
	}

	return errs
}

func (e *Engine) unknownRefs(fs FormatString) []string {
	var unknown []string
	for _, name := range fs.Refs() {
		if _, ok := e.defaults[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

func (e *Engine) unknownNamesInExpression(expr Expression) []string {
	switch x := expr.(type) {
	case NameExpr:
		if _, ok := e.defaults[x.Name]; !ok {
			return []string{x.Name}
		}
	case BinaryExpr:
		return append(e.unknownNamesInExpression(x.Left), e.unknownNamesInExpression(x.Right)...)
	}
	return nil
}

// staticKind определяет тип выражения по значениям переменных по умолчанию.
// Команды не могут менять тип переменной (см. commandIsValid), поэтому
// этот тип верен на протяжении всей игры.
func (e *Engine) staticKind(expr Expression) (ValueKind, bool) {
	switch x := expr.(type) {
	case LiteralExpr:
		return x.Value.Kind, true
	case NameExpr:
		v, ok := e.defaults[x.Name]
		return v.Kind, ok
	case BinaryExpr:
		return KindBool, true
	}
	return 0, false
}

func (e *Engine) expressionIsValid(expr Expression) bool {
	switch x := expr.(type) {
	case LiteralExpr:
		return true
	case NameExpr:
		_, ok := e.defaults[x.Name]
		return ok
	case BinaryExpr:
		if !e.expressionIsValid(x.Left) || !e.expressionIsValid(x.Right) {
			return false
		}
		if x.Op == OpGreaterThan || x.Op == OpLessThan {
			lk, _ := e.staticKind(x.Left)
			rk, _ := e.staticKind(x.Right)
			return lk == KindInt && rk == KindInt
		}
		return true
	}
	return false
}

func (e *Engine) unknownNamesInCommand(cmd *Command) []string {
	var unknown []string
	if _, ok := e.defaults[cmd.Target]; !ok {
		unknown = append(unknown, cmd.Target)
	}
	if cmd.Value.Kind == KindString {
		unknown = append(unknown, e.unknownRefs(cmd.Value.Str)...)
	}
	return unknown
}

func (e *Engine) commandIsValid(cmd *Command) bool {
	current, ok := e.defaults[cmd.Target]
	if !ok || current.Kind != cmd.Value.Kind {
		return false
	}
	if cmd.Value.Kind == KindString {
		return len(e.unknownRefs(cmd.Value.Str)) == 0
	}
	return true
}
