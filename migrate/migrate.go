// Package migrate swaps the implementation of a live entity while keeping its
// state.
package migrate

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fatih/structs"
)

// Errors returned by CopyFields.
var (
	ErrNotStructPointer = errors.New("migration target must be a pointer to a struct")
	ErrNotStruct        = errors.New("migration source must be a struct")
)

// CopyFields copies every exported field of src into the field of dst that has
// the same name and an assignable type. It returns the names of the copied
// fields. Fields tagged `structs:"-"` are skipped.
func CopyFields(dst, src any) ([]string, error) {
	dstValue := reflect.ValueOf(dst)
	if dstValue.Kind() != reflect.Ptr || dstValue.IsNil() ||
		dstValue.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %T", ErrNotStructPointer, dst)
	}

	if src == nil || !structs.IsStruct(src) {
		return nil, fmt.Errorf("%w: got %T", ErrNotStruct, src)
	}

	srcValue := reflect.Indirect(reflect.ValueOf(src))
	dstValue = dstValue.Elem()

	var copied []string

	for _, f := range structs.New(src).Fields() {
		if !f.IsExported() {
			continue
		}

		name := f.Name()
		to := dstValue.FieldByName(name)
		from := srcValue.FieldByName(name)

		if !to.IsValid() || !to.CanSet() {
			continue
		}

		if !from.Type().AssignableTo(to.Type()) {
			continue
		}

		to.Set(from)
		copied = append(copied, name)
	}

	return copied, nil
}
