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
	"sync/atomic"
)

// FieldGroup is the dispatch category of a struct field. Groups are written
// in this order.
type FieldGroup int8

const (
	// PrimitiveGroup fields are non-nullable numbers and bools, written raw
	PrimitiveGroup FieldGroup = iota
	// FinalGroup fields have a statically known codec: a flag then data
	FinalGroup
	// OtherGroup fields carry their concrete type with each value
	OtherGroup
	// ContainerGroup fields are lists and maps
	ContainerGroup
	numFieldGroups
)

func (g FieldGroup) String() string {
	switch g {
	case PrimitiveGroup:
		return "primitive"
	case FinalGroup:
		return "final"
	case OtherGroup:
		return "other"
	case ContainerGroup:
		return "container"
	}
	return fmt.Sprintf("FieldGroup(%d)", int8(g))
}

func fieldGroupOf(f FieldDef) FieldGroup {
	switch ft := f.fieldType.(type) {
	case *SimpleFieldType:
		if isPrimitiveTypeId(ft.TypeId()) && !f.nullable {
			return PrimitiveGroup
		}
		return FinalGroup
	case *CollectionFieldType, *MapFieldType:
		return ContainerGroup
	case *DynamicFieldType:
		if ft.concrete {
			return FinalGroup
		}
	}
	return OtherGroup
}

type classInfoEntry struct {
	type_ reflect.Type
	id    TypeId
	info  *TypeInfo
}

// classInfoCache remembers the last type seen at a dynamic field, so runs of
// same-typed values skip the registry. Plans are shared between goroutines,
// hence the atomics; only registry-wide identities are stored, never ones
// that depend on a single stream's meta context.
type classInfoCache struct {
	write atomic.Pointer[classInfoEntry]
	read  atomic.Pointer[classInfoEntry]
}

// fieldBinding connects one field of the wire layout to its local storage.
type fieldBinding struct {
	name  string
	def   FieldDef
	group FieldGroup
	// typeId of the declared field type
	typeId TypeId
	// index of the local struct field, -1 when absent locally
	index int
	// slot in canonical order, used by placeholders
	slot int
	// type_ is the Go type the wire value decodes into
	type_ reflect.Type
	// direct fields decode straight into the local field
	direct bool
	// optional marks a local optional.Optional field, carried as a nullable value
	optional bool
	info     *TypeInfo
	generic  *GenericType
	trackRef bool
	cache    classInfoCache
}

// fieldPlan is the immutable dispatch table for one (type, definition) pair.
type fieldPlan struct {
	type_       reflect.Type
	def         *TypeDef
	unknown     bool
	fields      []*fieldBinding
	groups      [numFieldGroups][]*fieldBinding
	versionHash int32
}

// newFieldPlan binds the fields of def, or t's own fields when def is nil,
// to the local struct t. Fields of def that t lacks are decoded and dropped;
// fields of t that def lacks keep their zero value.
func newFieldPlan(r *TypeRegistry, t reflect.Type, def *TypeDef, trackRef bool) (*fieldPlan, error) {
	plan := &fieldPlan{type_: t, def: def, unknown: t == unknownStructTyp}
	local := make(map[string]structField)
	if !plan.unknown {
		fields, err := structFields(t)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			local[f.name] = f
		}
	}
	var defs []FieldDef
	if def != nil {
		defs = def.fieldDefs
		plan.versionHash = def.versionHash
	} else {
		var err error
		if defs, err = buildFieldDefs(r, t, false, trackRef); err != nil {
			return nil, err
		}
		plan.versionHash = ComputeVersionHash(defs)
	}
	for i, fd := range defs {
		b := &fieldBinding{
			name:     fd.name,
			def:      fd,
			group:    fieldGroupOf(fd),
			typeId:   fd.fieldType.TypeId(),
			index:    -1,
			slot:     i,
			trackRef: fd.trackingRef,
		}
		lf, has := local[fd.name]
		var localType reflect.Type
		if has {
			b.index = lf.index
			localType = lf.type_
		}
		if err := bindField(r, b, localType, def == nil); err != nil {
			return nil, fmt.Errorf("binding field %s of %v: %w", fd.name, t, err)
		}
		plan.fields = append(plan.fields, b)
		plan.groups[b.group] = append(plan.groups[b.group], b)
	}
	return plan, nil
}

func bindField(r *TypeRegistry, b *fieldBinding, localType reflect.Type, ownLayout bool) error {
	ft := b.def.fieldType
	if localType != nil {
		_, b.optional = optionalElem(localType)
	}
	switch {
	case b.optional:
	case ownLayout:
		b.direct = true
	case localType == nil:
	case b.group == OtherGroup:
		b.direct = localType.Kind() == reflect.Interface
	default:
		localFt, err := buildFieldType(r, localType, true)
		b.direct = err == nil && sameFieldType(ft, localFt) && b.def.nullable == isNullableType(localType)
	}
	if b.direct {
		b.type_ = localType
	} else {
		b.type_ = r.goTypeFor(ft, b.def.nullable)
	}
	var goType reflect.Type
	if ownLayout {
		goType = localType
	}
	switch b.group {
	case FinalGroup:
		if d, ok := ft.(*DynamicFieldType); ok {
			if goType == nil {
				return fmt.Errorf("%w: concrete struct field without a local type", ErrUnknownType)
			}
			for goType.Kind() == reflect.Ptr {
				goType = goType.Elem()
			}
			info, err := r.typeInfoFor(goType, false)
			if err != nil {
				return err
			}
			if info.TypeID != d.TypeId() {
				return fmt.Errorf("%w: %v resolved to type id %d, field declares %d", ErrTypeConflict, goType, info.TypeID, d.TypeId())
			}
			b.info = info
			return nil
		}
		info, err := simpleFieldInfo(r, b.typeId)
		if err != nil {
			return err
		}
		b.info = info
	case ContainerGroup:
		g, err := newGenericType(r, ft, goType)
		if err != nil {
			return err
		}
		b.info = g.info
		b.generic = g
	}
	return nil
}
