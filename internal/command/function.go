package command

import (
	"fmt"
	"reflect"
	"strings"
)

// Function is a signature contract: a declarative description of a handler's
// parameter shape plus the logic that binds raw tokens to typed arguments
// and invokes the handler. Contracts are immutable after construction.
//
// All handlers share one shape:
//
//	func(inv *command.Invocation, <typed args...>) command.Result
//
// The constructor verifies, exactly once, that the handler's declared
// parameters match the descriptor list. A mismatch is a programming error in
// command registration and panics, so a malformed definition fails at
// startup before any traffic is dispatched (the regexp.MustCompile rule).
type Function interface {
	// Call binds raw tokens to typed arguments and invokes the handler.
	// Count or conversion failures yield a Result with Code 1 and
	// NeedHelp set; the handler is never invoked partially.
	Call(inv *Invocation, raw []string) Result
	// UsageLine renders the one-line usage fragment for help text.
	UsageLine() string
	// ParamHelp renders one bullet line per descriptor, or "" when the
	// contract has no parameters.
	ParamHelp() string
	// NumParams returns the number of descriptors, counting an optional
	// or variadic tail as one.
	NumParams() int
}

var (
	invocationType = reflect.TypeOf((*Invocation)(nil))
	resultType     = reflect.TypeOf(Result{})
)

// fixedFunc is the fixed-arity variant: one token per descriptor, exactly.
type fixedFunc struct {
	fn     reflect.Value
	params []Param
}

// NewFixed builds a fixed-arity contract. The handler must declare one
// positional parameter per descriptor, of the descriptor's Go type.
func NewFixed(fn any, params ...Param) Function {
	f := &fixedFunc{fn: reflect.ValueOf(fn), params: params}
	checkHandler(f.fn, params, nil, false)
	return f
}

func (f *fixedFunc) Call(inv *Invocation, raw []string) Result {
	if len(raw) != len(f.params) {
		return Result{
			Code:     1,
			Log:      fmt.Sprintf("Invalid argument number: expected %d, got %d", len(f.params), len(raw)),
			Reply:    fmt.Sprintf("wrong number of arguments: this command takes %d, got %d", len(f.params), len(raw)),
			NeedHelp: true,
		}
	}

	args := make([]reflect.Value, 0, len(raw)+1)
	args = append(args, reflect.ValueOf(inv))
	for i, tok := range raw {
		v, err := f.params[i].Type.convert(tok)
		if err != nil {
			return badArgument(f.params[i], tok)
		}
		args = append(args, v)
	}
	return f.fn.Call(args)[0].Interface().(Result)
}

func (f *fixedFunc) UsageLine() string {
	return usageLine(f.params, nil, false)
}

func (f *fixedFunc) ParamHelp() string {
	return paramHelp(f.params, nil)
}

func (f *fixedFunc) NumParams() int { return len(f.params) }

// optionalFunc is the fixed-plus-optional variant: the trailing descriptor
// binds to nil when its token is absent.
type optionalFunc struct {
	fn    reflect.Value
	fixed []Param
	opt   Param
}

// NewOptional builds a contract with fixed parameters plus one trailing
// optional parameter. The handler declares the trailing parameter as a
// pointer to the descriptor's Go type; it receives nil when the token is
// not supplied.
func NewOptional(fn any, fixed []Param, opt Param) Function {
	f := &optionalFunc{fn: reflect.ValueOf(fn), fixed: fixed, opt: opt}
	checkHandler(f.fn, fixed, &opt, false)
	return f
}

func (f *optionalFunc) Call(inv *Invocation, raw []string) Result {
	n := len(f.fixed)
	if len(raw) != n && len(raw) != n+1 {
		return Result{
			Code:     1,
			Log:      fmt.Sprintf("Invalid argument number: expected %d or %d, got %d", n, n+1, len(raw)),
			Reply:    fmt.Sprintf("wrong number of arguments: this command takes %d or %d, got %d", n, n+1, len(raw)),
			NeedHelp: true,
		}
	}

	args := make([]reflect.Value, 0, len(raw)+2)
	args = append(args, reflect.ValueOf(inv))
	for i, tok := range raw[:n] {
		v, err := f.fixed[i].Type.convert(tok)
		if err != nil {
			return badArgument(f.fixed[i], tok)
		}
		args = append(args, v)
	}

	ptrType := reflect.PointerTo(f.opt.Type.goType())
	if len(raw) > n {
		v, err := f.opt.Type.convert(raw[n])
		if err != nil {
			return Result{
				Code:     1,
				Log:      fmt.Sprintf("Invalid argument: expected optional %s, got %q", f.opt.Type, raw[n]),
				Reply:    fmt.Sprintf("bad argument: %s takes an optional %s value, got %q", f.opt.Name, f.opt.Type, raw[n]),
				NeedHelp: true,
			}
		}
		ptr := reflect.New(f.opt.Type.goType())
		ptr.Elem().Set(v)
		args = append(args, ptr)
	} else {
		args = append(args, reflect.Zero(ptrType))
	}
	return f.fn.Call(args)[0].Interface().(Result)
}

func (f *optionalFunc) UsageLine() string {
	return usageLine(f.fixed, &f.opt, false)
}

func (f *optionalFunc) ParamHelp() string {
	return paramHelp(f.fixed, &f.opt)
}

func (f *optionalFunc) NumParams() int { return len(f.fixed) + 1 }

// variadicFunc is the fixed-plus-variadic variant: every token beyond the
// fixed prefix is converted individually and passed as the trailing
// repeated argument.
type variadicFunc struct {
	fn       reflect.Value
	fixed    []Param
	variadic Param
}

// NewVariadic builds a contract with fixed parameters plus one trailing
// parameter repeated zero or more times. The handler declares the trailing
// parameter as Go-variadic (`...T`) of the descriptor's type.
func NewVariadic(fn any, fixed []Param, variadic Param) Function {
	f := &variadicFunc{fn: reflect.ValueOf(fn), fixed: fixed, variadic: variadic}
	checkHandler(f.fn, fixed, &variadic, true)
	return f
}

func (f *variadicFunc) Call(inv *Invocation, raw []string) Result {
	n := len(f.fixed)
	if len(raw) < n {
		return Result{
			Code:     1,
			Log:      fmt.Sprintf("Invalid argument number: expected at least %d, got %d", n, len(raw)),
			Reply:    fmt.Sprintf("wrong number of arguments: this command takes at least %d, got %d", n, len(raw)),
			NeedHelp: true,
		}
	}

	args := make([]reflect.Value, 0, len(raw)+1)
	args = append(args, reflect.ValueOf(inv))
	for i, tok := range raw[:n] {
		v, err := f.fixed[i].Type.convert(tok)
		if err != nil {
			return badArgument(f.fixed[i], tok)
		}
		args = append(args, v)
	}
	for _, tok := range raw[n:] {
		v, err := f.variadic.Type.convert(tok)
		if err != nil {
			return badArgument(f.variadic, tok)
		}
		args = append(args, v)
	}
	return f.fn.Call(args)[0].Interface().(Result)
}

func (f *variadicFunc) UsageLine() string {
	return usageLine(f.fixed, &f.variadic, true)
}

func (f *variadicFunc) ParamHelp() string {
	return paramHelp(f.fixed, &f.variadic)
}

func (f *variadicFunc) NumParams() int { return len(f.fixed) + 1 }

// badArgument is the shared conversion-failure Result.
func badArgument(p Param, raw string) Result {
	return Result{
		Code:     1,
		Log:      fmt.Sprintf("Invalid argument: expected %s, got %q", p.Type, raw),
		Reply:    fmt.Sprintf("bad argument: %s takes a %s value, got %q", p.Name, p.Type, raw),
		NeedHelp: true,
	}
}

// usageLine renders the usage fragments for a descriptor list. The tail
// fragment is appended without a separating space, e.g.
// "<name:string>[<weeks:int> ...]".
func usageLine(fixed []Param, tail *Param, variadic bool) string {
	parts := make([]string, 0, len(fixed))
	for _, p := range fixed {
		parts = append(parts, p.usage())
	}
	s := strings.Join(parts, " ")
	if tail != nil {
		if variadic {
			s += fmt.Sprintf("[%s ...]", tail.usage())
		} else {
			s += fmt.Sprintf("[%s]", tail.usage())
		}
	}
	return s
}

// paramHelp renders the bullet list for a descriptor list, fixed parameters
// first, the optional/variadic descriptor last.
func paramHelp(fixed []Param, tail *Param) string {
	lines := make([]string, 0, len(fixed)+1)
	for _, p := range fixed {
		lines = append(lines, p.bullet())
	}
	if tail != nil {
		lines = append(lines, tail.bullet())
	}
	return strings.Join(lines, "\n")
}

// checkHandler verifies a handler's declared shape against the descriptor
// list. It runs exactly once, at contract construction, and panics on
// mismatch: a bad shape is a defect in command registration, not a runtime
// condition.
func checkHandler(fn reflect.Value, fixed []Param, tail *Param, variadic bool) {
	if fn.Kind() != reflect.Func {
		panic(fmt.Sprintf("command: handler is %s, not a func", fn.Kind()))
	}
	t := fn.Type()

	want := expectedSignature(fixed, tail, variadic)
	if t.NumOut() != 1 || t.Out(0) != resultType {
		panic(fmt.Sprintf("command: invalid handler signature: expected %s, got %s", want, t))
	}

	wantIn := 1 + len(fixed)
	if tail != nil {
		wantIn++
	}
	if t.NumIn() != wantIn || t.In(0) != invocationType {
		panic(fmt.Sprintf("command: invalid handler signature: expected %s, got %s", want, t))
	}
	if t.IsVariadic() != variadic {
		panic(fmt.Sprintf("command: invalid handler signature: expected %s, got %s", want, t))
	}

	for i, p := range fixed {
		if t.In(i+1) != p.Type.goType() {
			panic(fmt.Sprintf("command: invalid handler signature: expected %s, got %s", want, t))
		}
	}
	if tail != nil {
		last := t.In(wantIn - 1)
		if variadic {
			if last != reflect.SliceOf(tail.Type.goType()) {
				panic(fmt.Sprintf("command: invalid handler signature: expected %s, got %s", want, t))
			}
		} else {
			if last != reflect.PointerTo(tail.Type.goType()) {
				panic(fmt.Sprintf("command: invalid handler signature: expected %s, got %s", want, t))
			}
		}
	}
}

// expectedSignature renders the handler shape a contract demands, for panic
// messages.
func expectedSignature(fixed []Param, tail *Param, variadic bool) string {
	parts := []string{"*command.Invocation"}
	for _, p := range fixed {
		parts = append(parts, p.Type.goType().String())
	}
	if tail != nil {
		if variadic {
			parts = append(parts, "..."+tail.Type.goType().String())
		} else {
			parts = append(parts, "*"+tail.Type.goType().String())
		}
	}
	return fmt.Sprintf("func(%s) command.Result", strings.Join(parts, ", "))
}
