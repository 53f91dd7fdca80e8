// Package js runs JavaScript command controllers in pooled v8 isolates.
package js

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/zond/mudcore"
	"go.uber.org/zap"
	"rogchap.com/v8go"
)

const (
	stateName = "state"
)

var (
	ErrTimeout = fmt.Errorf("Timeout")
)

var (
	machinesOnce sync.Once
	machines     chan *machine
)

type machine struct {
	iso *v8go.Isolate
}

func acquire() *machine {
	machinesOnce.Do(func() {
		machines = make(chan *machine, runtime.NumCPU())
		for i := 0; i < runtime.NumCPU(); i++ {
			machines <- &machine{iso: v8go.NewIsolate()}
		}
	})
	return <-machines
}

func release(m *machine) {
	machines <- m
}

type Callback func(rc *RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value

type Callbacks map[string]Callback

// Script is one JS source, the JSON state it left behind last time, and the
// Go functions it can call.
type Script struct {
	Source    string
	Origin    string
	State     string
	Callbacks Callbacks
	Console   *zap.SugaredLogger
}

type Result struct {
	State     string
	Callbacks []string
	Value     string
	Truthy    bool
	Invoked   bool
}

type RunContext struct {
	m         *machine
	vctx      *v8go.Context
	s         *Script
	callbacks map[string]*v8go.Function
}

func (rc *RunContext) Context() *v8go.Context {
	return rc.vctx
}

func (rc *RunContext) String(s string) *v8go.Value {
	if res, err := v8go.NewValue(rc.m.iso, s); err == nil {
		return res
	}
	return v8go.Undefined(rc.m.iso)
}

func (rc *RunContext) Throw(format string, args ...any) *v8go.Value {
	return rc.m.iso.ThrowException(rc.String(fmt.Sprintf(format, args...)))
}

// Strings returns the arguments of info as strings, objects as JSON.
func (rc *RunContext) Strings(info *v8go.FunctionCallbackInfo) []string {
	result := []string{}
	for _, arg := range info.Args() {
		s := arg.String()
		if arg.IsObject() && !arg.IsFunction() {
			if j, err := v8go.JSONStringify(rc.vctx, arg); err == nil {
				s = j
			}
		}
		result = append(result, s)
	}
	return result
}

func addJSCallback(rc *RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
	args := info.Args()
	if len(args) == 2 && args[0].IsString() && args[1].IsFunction() {
		fun, err := args[1].AsFunction()
		if err != nil {
			return rc.Throw("trying to cast %v to *v8go.Function: %v", args[1], err)
		}
		rc.callbacks[args[0].String()] = fun
		return nil
	}
	return rc.Throw("addCallback takes [string, function] arguments")
}

func removeJSCallback(rc *RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
	args := info.Args()
	if len(args) == 1 && args[0].IsString() {
		delete(rc.callbacks, args[0].String())
		return nil
	}
	return rc.Throw("removeCallback takes [string] arguments")
}

func (rc *RunContext) addCallback(name string, f Callback) error {
	return mudcore.WithStack(
		rc.vctx.Global().Set(
			name,
			v8go.NewFunctionTemplate(
				rc.m.iso,
				func(info *v8go.FunctionCallbackInfo) *v8go.Value {
					return f(rc, info)
				},
			).GetFunction(rc.vctx),
		),
	)
}

func (rc *RunContext) prepare(timeout *time.Duration) error {
	for name, fun := range rc.s.Callbacks {
		if err := rc.addCallback(name, fun); err != nil {
			return mudcore.WithStack(err)
		}
	}
	if err := rc.addCallback("addCallback", addJSCallback); err != nil {
		return mudcore.WithStack(err)
	}
	if err := rc.addCallback("removeCallback", removeJSCallback); err != nil {
		return mudcore.WithStack(err)
	}
	if rc.s.Console != nil {
		if err := rc.addCallback("log", func(rc *RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
			rc.s.Console.Infow(strings.Join(rc.Strings(info), " "), "origin", rc.s.Origin)
			return nil
		}); err != nil {
			return mudcore.WithStack(err)
		}
	}

	stateJSON := rc.s.State
	if stateJSON == "" {
		stateJSON = "{}"
	}
	startTime := time.Now()
	stateValue, err := v8go.JSONParse(rc.vctx, stateJSON)
	*timeout -= time.Since(startTime)
	if err != nil {
		return mudcore.WithStack(err)
	}
	return mudcore.WithStack(rc.vctx.Global().Set(stateName, stateValue))
}

type result struct {
	value *v8go.Value
	err   error
}

func (rc *RunContext) withTimeout(ctx context.Context, f func() (*v8go.Value, error), timeout *time.Duration) (*v8go.Value, error) {
	results := make(chan result, 1)
	start := time.Now()
	go func() {
		val, err := f()
		results <- result{value: val, err: err}
	}()

	select {
	case res := <-results:
		*timeout -= time.Since(start)
		if res.err != nil && rc.s.Console != nil {
			rc.s.Console.Warnw("script error", "origin", rc.s.Origin, "error", res.err)
		}
		return res.value, mudcore.WithStack(res.err)
	case <-ctx.Done():
		rc.m.iso.TerminateExecution()
		<-results
		return nil, mudcore.WithStack(ctx.Err())
	case <-time.After(*timeout):
		rc.m.iso.TerminateExecution()
		<-results
		return nil, mudcore.WithStack(ErrTimeout)
	}
}

// Call runs the script, then the callback it registered under callbackName
// with payload encoded as JSON, all within timeout.
func (s Script) Call(ctx context.Context, callbackName string, payload any, timeout time.Duration) (*Result, error) {
	m := acquire()
	defer release(m)

	vctx := v8go.NewContext(m.iso)
	defer vctx.Close()

	rc := &RunContext{
		m:         m,
		vctx:      vctx,
		s:         &s,
		callbacks: map[string]*v8go.Function{},
	}

	if err := rc.prepare(&timeout); err != nil {
		return nil, mudcore.WithStack(err)
	}

	if _, err := rc.withTimeout(ctx, func() (*v8go.Value, error) {
		return vctx.RunScript(s.Source, s.Origin)
	}, &timeout); err != nil {
		return nil, mudcore.WithStack(err)
	}

	jsCB, found := rc.callbacks[callbackName]
	if !found {
		return collectResult(rc, nil, false)
	}

	var arg *v8go.Value
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, mudcore.WithStack(err)
		}
		start := time.Now()
		if arg, err = v8go.JSONParse(vctx, string(b)); err != nil {
			return nil, mudcore.WithStack(err)
		}
		timeout -= time.Since(start)
	}

	val, err := rc.withTimeout(ctx, func() (*v8go.Value, error) {
		if arg != nil {
			return jsCB.Call(vctx.Global(), arg)
		}
		return jsCB.Call(vctx.Global())
	}, &timeout)
	if err != nil {
		return nil, mudcore.WithStack(err)
	}
	return collectResult(rc, val, true)
}

func collectResult(rc *RunContext, value *v8go.Value, invoked bool) (*Result, error) {
	result := &Result{
		Invoked: invoked,
	}
	if value != nil {
		result.Truthy = value.Boolean()
		if value.IsUndefined() {
			result.Value = "undefined"
		} else {
			var err error
			if result.Value, err = v8go.JSONStringify(rc.vctx, value); err != nil {
				return nil, mudcore.WithStack(err)
			}
		}
	}
	stateValue, err := rc.vctx.Global().Get(stateName)
	if err != nil {
		return nil, mudcore.WithStack(err)
	}
	if result.State, err = v8go.JSONStringify(rc.vctx, stateValue); err != nil {
		return nil, mudcore.WithStack(err)
	}
	for name := range rc.callbacks {
		result.Callbacks = append(result.Callbacks, name)
	}
	sort.Strings(result.Callbacks)
	return result, nil
}
