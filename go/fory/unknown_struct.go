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
)

// UnknownStruct stands in for a struct whose definition arrived on the wire
// but which no local type claims. It keeps every field value, so writing it
// back produces the original encoding.
type UnknownStruct struct {
	def     *TypeDef
	entries []UnknownField
	index   map[string]int
	// byValue is set when the source value was written without a reference id
	byValue bool
}

// UnknownField is one named value of an UnknownStruct.
type UnknownField struct {
	Name  string
	Value any

	type_ reflect.Type
}

// TypeDef returns the definition the placeholder was decoded from.
func (u *UnknownStruct) TypeDef() *TypeDef {
	return u.def
}

func (u *UnknownStruct) Len() int {
	return len(u.entries)
}

func (u *UnknownStruct) lookup(name string) (int, bool) {
	if u.index == nil {
		u.index = make(map[string]int, len(u.entries))
		for i, e := range u.entries {
			u.index[e.Name] = i
		}
	}
	i, ok := u.index[name]
	return i, ok
}

// Get returns the value of the named field.
func (u *UnknownStruct) Get(name string) (any, bool) {
	i, ok := u.lookup(name)
	if !ok {
		return nil, false
	}
	return u.entries[i].Value, true
}

// Set replaces the value of an existing field. The value must be
// convertible to the field's declared type; fields cannot be added.
func (u *UnknownStruct) Set(name string, value any) error {
	i, ok := u.lookup(name)
	if !ok {
		return fmt.Errorf("fory: %s has no field %q", u.typeLabel(), name)
	}
	want := u.entries[i].type_
	if value == nil {
		u.entries[i].Value = nil
		return nil
	}
	v := reflect.ValueOf(value)
	switch {
	case want == nil || want.Kind() == reflect.Interface || v.Type() == want:
	case v.Type().ConvertibleTo(want) && v.Kind() == want.Kind():
		v = v.Convert(want)
	default:
		return fmt.Errorf("%w: field %q of %s holds %v, got %v", ErrTypeMismatch, name, u.typeLabel(), want, v.Type())
	}
	u.entries[i].Value = v.Interface()
	return nil
}

// Fields returns the fields in canonical wire order.
func (u *UnknownStruct) Fields() []UnknownField {
	return append([]UnknownField(nil), u.entries...)
}

func (u *UnknownStruct) ToMap() map[string]any {
	m := make(map[string]any, len(u.entries))
	for _, e := range u.entries {
		m[e.Name] = e.Value
	}
	return m
}

func (u *UnknownStruct) typeLabel() string {
	if u.def == nil {
		return "UnknownStruct"
	}
	if u.def.registerByName {
		if u.def.namespace == "" {
			return u.def.typeName
		}
		return u.def.namespace + "." + u.def.typeName
	}
	return fmt.Sprintf("#%d", u.def.typeId>>8)
}

func (u *UnknownStruct) String() string {
	var sb strings.Builder
	sb.WriteString(u.typeLabel())
	sb.WriteByte('{')
	for i, e := range u.entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %v", e.Name, e.Value)
	}
	sb.WriteByte('}')
	return sb.String()
}

// unknownStructSerializer reads and writes placeholders for one definition.
type unknownStructSerializer struct {
	def *TypeDef
}

func (s *unknownStructSerializer) TypeId() TypeId       { return s.def.typeId }
func (s *unknownStructSerializer) NeedToWriteRef() bool { return true }

func (s *unknownStructSerializer) WriteData(ctx *WriteContext, value reflect.Value) error {
	if !value.CanAddr() {
		p := reflect.New(unknownStructTyp)
		p.Elem().Set(value)
		value = p.Elem()
	}
	u := value.Addr().Interface().(*UnknownStruct)
	if u.def == nil {
		return fmt.Errorf("%w: UnknownStruct without a definition", ErrUnsupportedType)
	}
	plan, err := ctx.registry.planFor(unknownStructTyp, u.def, false)
	if err != nil {
		return err
	}
	if ctx.checkVersion {
		ctx.buffer.WriteInt32(u.def.versionHash)
	}
	return ctx.writeFields(plan, reflect.Value{}, u)
}

func (s *unknownStructSerializer) ReadData(ctx *ReadContext, type_ reflect.Type, value reflect.Value) error {
	plan, err := ctx.registry.planFor(unknownStructTyp, s.def, false)
	if err != nil {
		return err
	}
	if ctx.checkVersion {
		if h := ctx.buffer.ReadInt32(); h != s.def.versionHash {
			return desyncf(ctx.buffer, "version hash %d does not match definition %s", h, s.def)
		}
	}
	u := value.Addr().Interface().(*UnknownStruct)
	u.def = s.def
	u.index = nil
	u.entries = make([]UnknownField, len(plan.fields))
	for i, b := range plan.fields {
		u.entries[i] = UnknownField{Name: b.name, type_: b.type_}
	}
	return ctx.readFields(plan, reflect.Value{}, u)
}
