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
	"unicode"
)

// structSerializer encodes a local struct type. info is the type's local
// identity; def is set on read-side serializers built for a transmitted
// definition and drives field dispatch instead of the local layout.
type structSerializer struct {
	type_ reflect.Type
	info  *TypeInfo
	def   *TypeDef
}

func (s *structSerializer) TypeId() TypeId       { return s.info.TypeID }
func (s *structSerializer) NeedToWriteRef() bool { return true }

func (s *structSerializer) WriteData(ctx *WriteContext, value reflect.Value) error {
	def := s.def
	if def == nil && (ctx.compatible || s.info.anonymous) {
		var err error
		if def, err = ctx.registry.typeDefFor(s.info, ctx.trackRef); err != nil {
			return err
		}
	}
	plan, err := ctx.registry.planFor(s.type_, def, ctx.trackRef)
	if err != nil {
		return err
	}
	if ctx.checkVersion {
		ctx.buffer.WriteInt32(plan.versionHash)
	}
	return ctx.writeFields(plan, value, nil)
}

func (s *structSerializer) ReadData(ctx *ReadContext, type_ reflect.Type, value reflect.Value) error {
	plan, err := ctx.registry.planFor(s.type_, s.def, ctx.trackRef)
	if err != nil {
		return err
	}
	if ctx.checkVersion {
		if err := ctx.checkVersionHash(s, plan, ctx.buffer.ReadInt32()); err != nil {
			return err
		}
	}
	if s.def != nil {
		// fields the definition lacks keep their zero value, not what the
		// target held before; Set keeps the address already referenced
		value.Set(reflect.Zero(value.Type()))
	}
	return ctx.readFields(plan, value, nil)
}

// checkVersionHash compares a struct's stream hash with what this process
// expects. Without a transmitted definition the layouts must agree exactly.
// With one, decoding is driven by the definition anyway, so a difference
// from the local type is only recorded.
func (c *ReadContext) checkVersionHash(s *structSerializer, plan *fieldPlan, actual int32) error {
	if s.def == nil {
		if actual != plan.versionHash {
			return &SchemaVersionMismatchError{TypeName: s.typeName(), Expected: plan.versionHash, Actual: actual}
		}
		return nil
	}
	if actual != s.def.versionHash {
		return desyncf(c.buffer, "version hash %d does not match definition of %v (%d)", actual, s.type_, s.def.versionHash)
	}
	local, err := c.registry.typeDefFor(s.info, c.trackRef)
	if err != nil {
		return err
	}
	if local.versionHash != actual {
		mismatch := &SchemaVersionMismatchError{TypeName: s.typeName(), Expected: local.versionHash, Actual: actual}
		c.recordMismatch(mismatch)
	}
	return nil
}

// typeName prefers the registered name over the Go type name.
func (s *structSerializer) typeName() string {
	info := s.info
	if !info.byName || info.anonymous {
		return s.type_.String()
	}
	if info.Namespace == "" {
		return info.TypeName
	}
	return info.Namespace + "." + info.TypeName
}

func (c *ReadContext) recordMismatch(m *SchemaVersionMismatchError) {
	for _, seen := range c.mismatches {
		if *seen == *m {
			return
		}
	}
	c.mismatches = append(c.mismatches, m)
	c.logger.Warn("struct schema differs from local type, decoding by transmitted definition",
		"type", m.TypeName, "local_hash", m.Expected, "stream_hash", m.Actual)
}

// writeFields writes the fields of plan from the struct v, or from the
// placeholder u when it is non-nil.
func (c *WriteContext) writeFields(plan *fieldPlan, v reflect.Value, u *UnknownStruct) error {
	buf := c.buffer
	for _, b := range plan.groups[PrimitiveGroup] {
		if err := writePrimitive(buf, b.typeId, fieldValue(b, v, u)); err != nil {
			return err
		}
	}
	for _, b := range plan.groups[FinalGroup] {
		fv := fieldValue(b, v, u)
		if c.writeRefOrNull(fv, b.trackRef) {
			continue
		}
		if err := c.writeData(b.info, nil, fv); err != nil {
			return fmt.Errorf("field %s: %w", b.name, err)
		}
	}
	for _, b := range plan.groups[OtherGroup] {
		if err := c.writeValueCached(fieldValue(b, v, u), &b.cache); err != nil {
			return fmt.Errorf("field %s: %w", b.name, err)
		}
	}
	for _, b := range plan.groups[ContainerGroup] {
		fv := fieldValue(b, v, u)
		if c.writeRefOrNull(fv, b.trackRef) {
			continue
		}
		if err := c.writeData(b.info, b.generic, fv); err != nil {
			return fmt.Errorf("field %s: %w", b.name, err)
		}
	}
	return nil
}

func fieldValue(b *fieldBinding, v reflect.Value, u *UnknownStruct) reflect.Value {
	if u != nil {
		if val := u.entries[b.slot].Value; val != nil {
			return reflect.ValueOf(val)
		}
		return reflect.Zero(b.type_)
	}
	if b.optional {
		return optionalToPtr(v.Field(b.index))
	}
	return v.Field(b.index)
}

// readFields decodes the fields of plan into the struct v, or into the
// placeholder u when it is non-nil.
func (c *ReadContext) readFields(plan *fieldPlan, v reflect.Value, u *UnknownStruct) error {
	buf := c.buffer
	for _, b := range plan.groups[PrimitiveGroup] {
		target, tmp := fieldTarget(plan, b, v)
		if err := readPrimitive(buf, b.typeId, target); err != nil {
			return fmt.Errorf("field %s: %w", b.name, err)
		}
		if tmp {
			c.storeField(b, v, u, target)
		}
	}
	for _, b := range plan.groups[FinalGroup] {
		target, tmp := fieldTarget(plan, b, v)
		if err := c.readRefAndData(b.info, nil, target); err != nil {
			return fmt.Errorf("field %s: %w", b.name, err)
		}
		if tmp {
			c.storeField(b, v, u, target)
		}
	}
	for _, b := range plan.groups[OtherGroup] {
		target, tmp := fieldTarget(plan, b, v)
		if err := c.readValue(target, &b.cache); err != nil {
			return fmt.Errorf("field %s: %w", b.name, err)
		}
		if tmp {
			c.storeField(b, v, u, target)
		}
	}
	for _, b := range plan.groups[ContainerGroup] {
		target, tmp := fieldTarget(plan, b, v)
		if err := c.readRefAndData(b.info, b.generic, target); err != nil {
			return fmt.Errorf("field %s: %w", b.name, err)
		}
		if tmp {
			c.storeField(b, v, u, target)
		}
	}
	return buf.Err()
}

// fieldTarget returns where a field decodes to. tmp is true when the value
// must be moved afterwards.
func fieldTarget(plan *fieldPlan, b *fieldBinding, v reflect.Value) (target reflect.Value, tmp bool) {
	if plan.unknown || b.index < 0 || !b.direct {
		return reflect.New(b.type_).Elem(), true
	}
	return v.Field(b.index), false
}

func (c *ReadContext) storeField(b *fieldBinding, v reflect.Value, u *UnknownStruct, val reflect.Value) {
	switch {
	case u != nil:
		u.entries[b.slot].Value = val.Interface()
	case b.index >= 0:
		if err := assignValue(v.Field(b.index), val); err != nil {
			c.logger.Debug("dropping field with incompatible type", "field", b.name, "error", err)
		}
	}
}

type structField struct {
	name  string
	index int
	type_ reflect.Type
}

// structFields lists the serializable fields of t in declaration order.
// Names come from a `fory:"name"` tag or the snake_case field name; a tag
// of "-" skips the field.
func structFields(t reflect.Type) ([]structField, error) {
	fields := make([]structField, 0, t.NumField())
	seen := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := SnakeCase(f.Name)
		if tag, ok := f.Tag.Lookup("fory"); ok {
			tag, _, _ = strings.Cut(tag, ",")
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		if other, dup := seen[name]; dup {
			return nil, fmt.Errorf("fory: fields %s and %s of %v share the name %q", other, f.Name, t, name)
		}
		seen[name] = f.Name
		fields = append(fields, structField{name: name, index: i, type_: f.Type})
	}
	return fields, nil
}

// SnakeCase converts a Go identifier to snake_case, keeping acronyms
// together: "HTTPServer" becomes "http_server".
func SnakeCase(s string) string {
	runes := []rune(s)
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
