// Package command provides the command-dispatch core for groupbot: parameter
// descriptors, signature contracts that bind raw tokens to typed handler
// arguments, the command tree, and the result protocol shared by all handlers.
package command

import (
	"fmt"
	"reflect"
	"strconv"
)

// TypeTag identifies the target type of a command parameter.
type TypeTag int

const (
	// TypeString passes the raw token through unchanged.
	TypeString TypeTag = iota
	// TypeInt converts the token with strconv.Atoi.
	TypeInt
	// TypeFloat converts the token with strconv.ParseFloat.
	TypeFloat
	// TypeBool converts the token with strconv.ParseBool.
	TypeBool
)

// String returns the name used in usage lines and error messages.
func (t TypeTag) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	default:
		return fmt.Sprintf("TypeTag(%d)", int(t))
	}
}

// goType returns the Go type a handler must declare for this tag.
func (t TypeTag) goType() reflect.Type {
	switch t {
	case TypeString:
		return reflect.TypeOf("")
	case TypeInt:
		return reflect.TypeOf(int(0))
	case TypeFloat:
		return reflect.TypeOf(float64(0))
	case TypeBool:
		return reflect.TypeOf(false)
	default:
		panic(fmt.Sprintf("command: unknown type tag %d", int(t)))
	}
}

// convert parses a raw token into a value of the tag's Go type.
func (t TypeTag) convert(raw string) (reflect.Value, error) {
	switch t {
	case TypeString:
		return reflect.ValueOf(raw), nil
	case TypeInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(n), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(f), nil
	case TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil
	default:
		return reflect.Value{}, fmt.Errorf("unknown type tag %d", int(t))
	}
}

// Param describes one command parameter: its name, target type, and the
// human-readable description rendered in help text. A Param is owned by
// exactly one signature contract and never mutated after construction.
type Param struct {
	Name string
	Type TypeTag
	Desc string
}

// usage renders the parameter's usage fragment, e.g. "<count:int>".
func (p Param) usage() string {
	return fmt.Sprintf("<%s:%s>", p.Name, p.Type)
}

// bullet renders the parameter's help bullet, e.g. "* count: number of items".
func (p Param) bullet() string {
	return fmt.Sprintf("* %s: %s", p.Name, p.Desc)
}
