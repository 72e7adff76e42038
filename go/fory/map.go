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
	"math"
	"reflect"
	"sort"
)

// mapSerializer writes [n][key flags][value flags][key info][value info]
// followed by n key/value pairs. Keys of ordered kinds are written sorted so
// equal maps encode to equal bytes.
type mapSerializer struct{}

func (s mapSerializer) TypeId() TypeId       { return MAP }
func (s mapSerializer) NeedToWriteRef() bool { return true }

func (s mapSerializer) WriteData(ctx *WriteContext, value reflect.Value) error {
	var keyGen, valueGen *GenericType
	if gen := ctx.generics.top(); gen != nil {
		keyGen, valueGen = gen.key, gen.value
	}
	buf := ctx.buffer
	buf.WriteVarUint32(uint32(value.Len()))
	ke, err := ctx.prepareElems(keyGen, value.Type().Key())
	if err != nil {
		return err
	}
	ve, err := ctx.prepareElems(valueGen, value.Type().Elem())
	if err != nil {
		return err
	}
	buf.WriteByte_(ke.flags)
	buf.WriteByte_(ve.flags)
	if ke.flags&elemSameType != 0 {
		if err := ctx.writeTypeInfo(ke.info); err != nil {
			return err
		}
	}
	if ve.flags&elemSameType != 0 {
		if err := ctx.writeTypeInfo(ve.info); err != nil {
			return err
		}
	}
	for _, e := range sortedMapEntries(value) {
		if err := ctx.writeElem(ke, e.key); err != nil {
			return err
		}
		if err := ctx.writeElem(ve, e.value); err != nil {
			return err
		}
	}
	return nil
}

func (s mapSerializer) ReadData(ctx *ReadContext, type_ reflect.Type, value reflect.Value) error {
	buf := ctx.buffer
	n := int(buf.ReadVarUint32())
	if n > buf.Remaining() {
		return desyncf(buf, "map of %d entries exceeds remaining %d bytes", n, buf.Remaining())
	}
	var keyGen, valueGen *GenericType
	if gen := ctx.generics.top(); gen != nil {
		keyGen, valueGen = gen.key, gen.value
	}
	keyFlags, valueFlags := buf.ReadByte_(), buf.ReadByte_()
	ke, err := ctx.elemCodecFor(keyFlags, keyGen)
	if err != nil {
		return err
	}
	ve, err := ctx.elemCodecFor(valueFlags, valueGen)
	if err != nil {
		return err
	}
	var mapType reflect.Type
	switch value.Kind() {
	case reflect.Map:
		mapType = value.Type()
	case reflect.Interface:
		keyType := ctx.elemGoType(ke)
		if !keyType.Comparable() {
			keyType = interfaceType
		}
		mapType = reflect.MapOf(keyType, ctx.elemGoType(ve))
	default:
		return fmt.Errorf("%w: cannot decode map into %v", ErrTypeMismatch, value.Type())
	}
	m := reflect.MakeMapWithSize(mapType, n)
	value.Set(m)
	ctx.refReader.Reference(m)
	for i := 0; i < n; i++ {
		k := reflect.New(mapType.Key()).Elem()
		if err := ctx.readElem(ke, k); err != nil {
			return err
		}
		if k.Kind() == reflect.Interface && !k.IsNil() && !k.Elem().Type().Comparable() {
			return fmt.Errorf("%w: map key of type %v is not hashable", ErrTypeMismatch, k.Elem().Type())
		}
		v := reflect.New(mapType.Elem()).Elem()
		if err := ctx.readElem(ve, v); err != nil {
			return err
		}
		m.SetMapIndex(k, v)
	}
	return nil
}

type mapEntry struct {
	key, value reflect.Value
}

// sortedMapEntries collects the entries of m with MapRange, so keys that are
// not equal to themselves (NaN) keep their values. NaN keys sort first.
func sortedMapEntries(m reflect.Value) []mapEntry {
	entries := make([]mapEntry, 0, m.Len())
	iter := m.MapRange()
	for iter.Next() {
		entries = append(entries, mapEntry{key: iter.Key(), value: iter.Value()})
	}
	var less func(a, b reflect.Value) bool
	switch m.Type().Key().Kind() {
	case reflect.String:
		less = func(a, b reflect.Value) bool { return a.String() < b.String() }
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		less = func(a, b reflect.Value) bool { return a.Int() < b.Int() }
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		less = func(a, b reflect.Value) bool { return a.Uint() < b.Uint() }
	case reflect.Float32, reflect.Float64:
		less = func(a, b reflect.Value) bool {
			x, y := a.Float(), b.Float()
			return x < y || (math.IsNaN(x) && !math.IsNaN(y))
		}
	case reflect.Bool:
		less = func(a, b reflect.Value) bool { return !a.Bool() && b.Bool() }
	default:
		return entries
	}
	sort.SliceStable(entries, func(i, j int) bool { return less(entries[i].key, entries[j].key) })
	return entries
}
