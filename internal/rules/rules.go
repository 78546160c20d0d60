// Package rules compiles and evaluates collection access rules.
//
// A rule is a CEL expression that must evaluate to a bool. Two variables are
// in scope:
//
//	request  map: {"auth": {"id": ..., "collectionName": ...}, "method": ..., "data": {...}}
//	record   map: the record's field values, plus "id"
//
// Example rules:
//
//	request.auth.id != ""
//	record.mentor_id == request.auth.id || record.mentee_id == request.auth.id
//
// A nil or blank rule is unrestricted.
package rules

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// ErrInvalidRule is wrapped by every compile failure.
var ErrInvalidRule = errors.New("invalid rule")

// Request is the caller context a rule is evaluated against.
type Request struct {
	AuthID         string
	AuthCollection string
	Method         string
	Data           map[string]any
}

func (r Request) activation() map[string]any {
	data := r.Data
	if data == nil {
		data = map[string]any{}
	}
	return map[string]any{
		"auth": map[string]any{
			"id":             r.AuthID,
			"collectionName": r.AuthCollection,
		},
		"method": r.Method,
		"data":   data,
	}
}

// Engine compiles rules once and caches the resulting programs.
// Safe for concurrent use.
type Engine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewEngine creates an Engine with the request/record declarations.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("request", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel environment: %w", err)
	}
	return &Engine{env: env, programs: make(map[string]cel.Program)}, nil
}

var defaultEngine = sync.OnceValues(NewEngine)

// Default returns the process-wide Engine.
func Default() (*Engine, error) {
	return defaultEngine()
}

// Check compiles expr with the default engine and discards the program.
func Check(expr string) error {
	e, err := Default()
	if err != nil {
		return err
	}
	_, err = e.Compile(expr)
	return err
}

// Compile type-checks expr and returns its program.
// The expression must produce a bool (or dyn, which is checked at evaluation).
func (e *Engine) Compile(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRule, strings.TrimSpace(iss.Err().Error()))
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: expression yields %s, want bool", ErrInvalidRule, out)
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	e.mu.Lock()
	e.programs[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// Allow evaluates rule against req and record.
// A nil or blank rule always allows.
func (e *Engine) Allow(rule *string, req Request, record map[string]any) (bool, error) {
	if rule == nil || strings.TrimSpace(*rule) == "" {
		return true, nil
	}
	prg, err := e.Compile(*rule)
	if err != nil {
		return false, err
	}
	if record == nil {
		record = map[string]any{}
	}
	out, _, err := prg.Eval(map[string]any{
		"request": req.activation(),
		"record":  record,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate rule: %w", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluate rule: result %v is not a bool", out.Value())
	}
	return allowed, nil
}
