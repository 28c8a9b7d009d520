// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package predicate compiles user-supplied filter expressions into
// operator.Predicates, so a run config can add an extra filter stage
// without a code change — expressions are compiled once at startup and
// evaluated per record against that record's own fields, the same
// compile-once/evaluate-per-input shape a classification rule engine
// uses.
package predicate

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/record"
	"github.com/lukemarshall2222/netquery/pkg/value"
)

// CompileError reports a rule expression that failed to compile.
type CompileError struct {
	Expr   string
	Reason error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("predicate: %q does not compile: %v", e.Expr, e.Reason)
}

func (e *CompileError) Unwrap() error { return e.Reason }

// EvalError reports a compiled rule that failed, or did not return a
// bool, when run against a record.
type EvalError struct {
	Expr   string
	Reason error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("predicate: %q failed to evaluate: %v", e.Expr, e.Reason)
}

func (e *EvalError) Unwrap() error { return e.Reason }

// recordEnv is the environment a compiled rule sees: one entry per
// field the record being tested carries, named with every "." replaced
// by "_" (so "ipv4.proto" is ipv4_proto in a rule), with Values
// unwrapped to plain Go types expr-lang's operators understand
// (float64, int64, string). Fields absent from a given record are
// simply absent from env: a rule referencing one reads nil there, so
// the predicate Compile returns does not match that record, while
// CheckAgainst reports the reference as an EvalError.
func recordEnv(r record.Record) map[string]any {
	env := make(map[string]any, r.Len())
	for _, k := range r.Keys() {
		v, _ := r.Get(k)
		name := strings.ReplaceAll(k, ".", "_")
		switch v.Arm() {
		case value.ArmFloat:
			f, _ := v.AsFloat()
			env[name] = f
		case value.ArmInt:
			n, _ := v.AsInt()
			env[name] = n
		case value.ArmIPv4, value.ArmMAC:
			env[name] = v.String()
		default:
			env[name] = nil
		}
	}
	return env
}

// Compile compiles a boolean expr-lang expression (e.g. "ipv4_proto ==
// 6 && l4_flags == 2") into an operator.Predicate. The expression is
// evaluated per-record against that record's fields; a record missing
// a field the expression references, or a field of the wrong type,
// makes the predicate reject that record rather than panic — compile
// the rule once at startup with a representative sample record via
// CheckAgainst to catch such mistakes early instead.
func Compile(source string) (operator.Predicate, error) {
	program, err := expr.Compile(source, expr.AsBool())
	if err != nil {
		return nil, &CompileError{Expr: source, Reason: err}
	}

	return func(r record.Record) bool {
		out, err := vm.Run(program, recordEnv(r))
		if err != nil {
			return false
		}
		matched, ok := out.(bool)
		return ok && matched
	}, nil
}

// CheckAgainst compiles source and runs it once against sample,
// returning an *EvalError if the expression does not evaluate cleanly —
// useful at config-load time to fail fast on a typo'd field name rather
// than silently filtering every record out of a live run.
func CheckAgainst(source string, sample record.Record) error {
	if _, err := expr.Compile(source, expr.AsBool()); err != nil {
		return &CompileError{Expr: source, Reason: err}
	}
	env := recordEnv(sample)
	program, err := expr.Compile(source, expr.Env(env), expr.AsBool())
	if err != nil {
		return &EvalError{Expr: source, Reason: err}
	}
	if _, err := vm.Run(program, env); err != nil {
		return &EvalError{Expr: source, Reason: err}
	}
	return nil
}
