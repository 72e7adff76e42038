// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package fory

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/chaokunyang/fory/go/fory/optional"
)

var optionalPkgPath = reflect.TypeOf(optional.Optional[int]{}).PkgPath()

// optionalElem reports whether t is an optional.Optional[T] and returns T.
func optionalElem(t reflect.Type) (reflect.Type, bool) {
	if t == nil || t.Kind() != reflect.Struct || t.PkgPath() != optionalPkgPath {
		return nil, false
	}
	if name := t.Name(); name != "Optional" && !strings.HasPrefix(name, "Optional[") {
		return nil, false
	}
	value, ok := t.FieldByName("Value")
	if !ok {
		return nil, false
	}
	if has, ok := t.FieldByName("Has"); !ok || has.Type.Kind() != reflect.Bool {
		return nil, false
	}
	return value.Type, true
}

func validateOptionalValueType(t reflect.Type) error {
	base := t
	for base.Kind() == reflect.Ptr {
		base = base.Elem()
	}
	switch base.Kind() {
	case reflect.Struct, reflect.Slice, reflect.Map, reflect.Array, reflect.Interface:
		return fmt.Errorf("%w: optional.Optional[%v] is limited to scalars and strings", ErrUnsupportedType, t)
	}
	return nil
}

// optionalToPtr turns an Optional[T] into a *T, nil when empty.
func optionalToPtr(v reflect.Value) reflect.Value {
	elem, _ := optionalElem(v.Type())
	if !v.FieldByName("Has").Bool() {
		return reflect.Zero(reflect.PtrTo(elem))
	}
	p := reflect.New(elem)
	p.Elem().Set(v.FieldByName("Value"))
	return p
}

func assignOptional(target, v reflect.Value, elem reflect.Type) error {
	if isNil(v) {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	value := reflect.New(elem).Elem()
	if err := assignValue(value, v); err != nil {
		return err
	}
	target.FieldByName("Value").Set(value)
	target.FieldByName("Has").SetBool(true)
	return nil
}
