package recipe

import (
	"go/ast"
	"io"
	"reflect"
	"unsafe"
)

// unexportValueOf creates a reflect.Value that allows access to unexported fields.
func unexportValueOf(field reflect.Value) reflect.Value {
	return reflect.NewAt(field.Type(), unsafe.Pointer(field.UnsafeAddr())).Elem()
}

// setValue sets the value of a field by name in a struct element. It
// reports whether the field exists and accepts value.
func setValue(elem reflect.Value, name string, value any) bool {
	field := elem.FieldByName(name)
	if !field.IsValid() {
		return false
	}
	if !ast.IsExported(name) {
		field = unexportValueOf(field)
	}
	val := reflect.ValueOf(value)
	if !val.IsValid() {
		val = reflect.Zero(field.Type())
	}
	if !val.Type().AssignableTo(field.Type()) {
		return false
	}
	field.Set(val)
	return true
}

// setOutput redirects the output of commands run through the embedded
// gsh.App of a scripted recipe.
func (p *RecipeApp) setOutput(stdout, stderr io.Writer) {
	elem := reflect.ValueOf(&p.App).Elem()
	if stdout != nil {
		setValue(elem, "fout", stdout)
	}
	if stderr != nil {
		setValue(elem, "ferr", stderr)
	}
}
