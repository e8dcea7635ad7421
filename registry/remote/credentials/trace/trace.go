/*
Copyright The ORAS Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package trace provides tracing hooks for stores that invoke external
// credential helper executables.
package trace

import "context"

// ExecutableTrace is a set of hooks used to trace the execution of
// credential helper executables invoked by a Store. Any particular hook
// may be nil, in which case it is skipped.
type ExecutableTrace struct {
	// ExecuteStart is called before an executable is invoked for the given
	// action ("get", "store" or "erase").
	ExecuteStart func(executableName string, action string)

	// ExecuteDone is called after an executable invoked for the given action
	// has completed, with any error it returned.
	ExecuteDone func(executableName string, action string, err error)
}

// contextKey is the key used to store an ExecutableTrace in a context.Context.
type contextKey struct{}

// compose returns a new ExecutableTrace whose hooks call new's hooks followed
// by old's hooks, so the most recently added trace observes events first.
// Either argument may have nil hooks.
func compose(old, new *ExecutableTrace) *ExecutableTrace {
	return &ExecutableTrace{
		ExecuteStart: func(executableName, action string) {
			if new.ExecuteStart != nil {
				new.ExecuteStart(executableName, action)
			}
			if old.ExecuteStart != nil {
				old.ExecuteStart(executableName, action)
			}
		},
		ExecuteDone: func(executableName, action string, err error) {
			if new.ExecuteDone != nil {
				new.ExecuteDone(executableName, action, err)
			}
			if old.ExecuteDone != nil {
				old.ExecuteDone(executableName, action, err)
			}
		},
	}
}

// ContextExecutableTrace returns the ExecutableTrace associated with ctx, or
// nil if none is set.
func ContextExecutableTrace(ctx context.Context) *ExecutableTrace {
	trace, _ := ctx.Value(contextKey{}).(*ExecutableTrace)
	return trace
}

// WithExecutableTrace returns a new context derived from ctx carrying trace.
// If ctx already carries an ExecutableTrace, the hooks of both traces are
// composed, with the existing trace's hooks called first. If trace is nil,
// ctx is returned unchanged.
func WithExecutableTrace(ctx context.Context, trace *ExecutableTrace) context.Context {
	if trace == nil {
		return ctx
	}
	if old := ContextExecutableTrace(ctx); old != nil {
		trace = compose(old, trace)
	}
	return context.WithValue(ctx, contextKey{}, trace)
}
