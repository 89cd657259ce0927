package filter

import (
	"fmt"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Engine evaluates boolean filter expressions against row maps. It is
// used by the audit/reporting surface to let operators narrow action
// history and pending-action lists, e.g.
// "status == 'pending' && is_escalated".
type Engine struct {
	programCache map[string]*vm.Program
	mu           sync.RWMutex
}

// NewEngine creates a new filter engine
func NewEngine() *Engine {
	return &Engine{
		programCache: make(map[string]*vm.Program),
	}
}

// Validate checks expression syntax without evaluating it.
func (e *Engine) Validate(expression string) error {
	_, err := e.getProgram(expression)
	return err
}

// Match evaluates the expression against a single row. A non-boolean
// result is an error: filters must be predicates.
func (e *Engine) Match(expression string, row map[string]interface{}) (bool, error) {
	program, err := e.getProgram(expression)
	if err != nil {
		return false, err
	}

	output, err := expr.Run(program, row)
	if err != nil {
		return false, err
	}

	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("filter expression must evaluate to a boolean, got %T", output)
	}
	return result, nil
}

// MatchList returns the rows for which the expression evaluates true.
// An empty expression matches everything.
func (e *Engine) MatchList(expression string, rows []map[string]interface{}) ([]map[string]interface{}, error) {
	if expression == "" {
		return rows, nil
	}

	matched := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		ok, err := e.Match(expression, row)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

func (e *Engine) getProgram(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.programCache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double check
	if prog, ok := e.programCache[expression]; ok {
		return prog, nil
	}

	options := []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.Function("NOW", func(params ...interface{}) (interface{}, error) {
			return time.Now().UTC(), nil
		}),
		expr.Function("TODAY", func(params ...interface{}) (interface{}, error) {
			return time.Now().UTC().Format("2006-01-02"), nil
		}),
	}

	program, err := expr.Compile(expression, options...)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}

	e.programCache[expression] = program
	return program, nil
}
