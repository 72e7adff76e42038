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
)

// GenericType is the declared shape of a container field: the codec for
// its elements (or keys and values) when they are statically known, and the
// nested shapes below it.
type GenericType struct {
	fieldType FieldType
	// info is nil when element types travel with each element
	info     *TypeInfo
	nullable bool
	elem     *GenericType
	key      *GenericType
	value    *GenericType
}

// newGenericType resolves ft against the registry. goType is the local Go
// type at this position, used for concrete struct elements; it is nil for
// shapes that only come from a transmitted TypeDef.
func newGenericType(r *TypeRegistry, ft FieldType, goType reflect.Type) (*GenericType, error) {
	g := &GenericType{fieldType: ft, nullable: ft.Nullable()}
	for goType != nil && goType.Kind() == reflect.Ptr {
		goType = goType.Elem()
	}
	var err error
	switch ft := ft.(type) {
	case *SimpleFieldType:
		g.info, err = simpleFieldInfo(r, ft.TypeId())
	case *CollectionFieldType:
		g.info = builtinInfos[LIST]
		var elemType reflect.Type
		if goType != nil && (goType.Kind() == reflect.Slice || goType.Kind() == reflect.Array) {
			elemType = goType.Elem()
		}
		g.elem, err = newGenericType(r, ft.elementType, elemType)
	case *MapFieldType:
		g.info = builtinInfos[MAP]
		var keyType, valueType reflect.Type
		if goType != nil && goType.Kind() == reflect.Map {
			keyType, valueType = goType.Key(), goType.Elem()
		}
		if g.key, err = newGenericType(r, ft.keyType, keyType); err != nil {
			return nil, err
		}
		g.value, err = newGenericType(r, ft.valueType, valueType)
	case *DynamicFieldType:
		if ft.concrete && goType != nil {
			g.info, err = r.typeInfoFor(goType, false)
		}
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func simpleFieldInfo(r *TypeRegistry, id TypeId) (*TypeInfo, error) {
	info := r.typeInfoById(id)
	if info == nil {
		return nil, fmt.Errorf("%w: field type id %d has no local codec", ErrUnknownType, id)
	}
	return info, nil
}

// Generics is the stack of declared container shapes for the value being
// encoded or decoded. Every value pushes one frame, nil when it carries no
// declaration, so nested containers never see an ancestor's shape.
type Generics struct {
	stack []*GenericType
}

func (g *Generics) push(t *GenericType) {
	g.stack = append(g.stack, t)
}

func (g *Generics) pop() {
	g.stack = g.stack[:len(g.stack)-1]
}

func (g *Generics) top() *GenericType {
	if len(g.stack) == 0 {
		return nil
	}
	return g.stack[len(g.stack)-1]
}

func (g *Generics) reset() {
	clear(g.stack)
	g.stack = g.stack[:0]
}
