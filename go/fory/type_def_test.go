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
	"testing"

	"github.com/stretchr/testify/require"
)

type catalogEntry struct {
	SKU      string
	Price    float64
	Stock    int32
	Labels   []string
	Variants map[string][]int32
	Parent   *catalogEntry
	Meta     any
	Discount *float32
}

type catalogEntryReordered struct {
	Discount *float32
	Meta     any
	Parent   *catalogEntryReordered
	Variants map[string][]int32
	Labels   []string
	Stock    int32
	Price    float64
	SKU      string
}

func readDef(t *testing.T, encoded []byte) (*TypeDef, *ReadContext) {
	t.Helper()
	ctx := newReadContext(NewTypeRegistry(), NewMetaContext(), DefaultConfig())
	ctx.SetData(encoded)
	def, err := ctx.readTypeDef()
	require.NoError(t, err)
	require.Zero(t, ctx.Buffer().Remaining())
	return def, ctx
}

func localDef(t *testing.T, r *TypeRegistry, type_ any) *TypeDef {
	t.Helper()
	info := r.registeredInfo(reflect.TypeOf(type_))
	require.NotNil(t, info)
	def, err := r.typeDefFor(info, true)
	require.NoError(t, err)
	return def
}

func requireSameFields(t *testing.T, want, got []FieldDef) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].Name(), got[i].Name())
		require.Equal(t, want[i].Nullable(), got[i].Nullable(), want[i].Name())
		require.Equal(t, want[i].TrackingRef(), got[i].TrackingRef(), want[i].Name())
		require.True(t, sameFieldType(want[i].FieldType(), got[i].FieldType()), want[i].Name())
	}
}

func TestTypeDefRoundTrip(t *testing.T) {
	r := NewTypeRegistry()
	require.NoError(t, r.RegisterNamedStruct(catalogEntry{}, "shop", "Entry"))
	def := localDef(t, r, catalogEntry{})
	require.True(t, def.RegisterByName())
	require.Equal(t, NAMED_COMPATIBLE_STRUCT, def.TypeId())

	got, ctx := readDef(t, def.Encoded())
	require.Equal(t, def.ID(), got.ID())
	require.Equal(t, "shop", got.Namespace())
	require.Equal(t, "Entry", got.TypeName())
	require.Equal(t, def.VersionHash(), got.VersionHash())
	require.Equal(t, def.Encoded(), got.Encoded())
	requireSameFields(t, def.Fields(), got.Fields())
	require.Equal(t, 1, ctx.registry.TypeDefCache().Len())

	// a second read is served from the cache
	ctx.SetData(def.Encoded())
	again, err := ctx.readTypeDef()
	require.NoError(t, err)
	require.Same(t, got, again)
}

func TestTypeDefById(t *testing.T) {
	r := NewTypeRegistry()
	require.NoError(t, r.RegisterStruct(catalogEntry{}, 300))
	def := localDef(t, r, catalogEntry{})
	require.False(t, def.RegisterByName())
	require.Equal(t, TypeId(300<<8|COMPATIBLE_STRUCT), def.TypeId())

	got, _ := readDef(t, def.Encoded())
	require.Equal(t, def.TypeId(), got.TypeId())
	requireSameFields(t, def.Fields(), got.Fields())
}

func TestTypeDefCanonicalOrder(t *testing.T) {
	r := NewTypeRegistry()
	require.NoError(t, r.RegisterNamedStruct(catalogEntry{}, "shop", "Entry"))
	other := NewTypeRegistry()
	require.NoError(t, other.RegisterNamedStruct(catalogEntryReordered{}, "shop", "Entry"))

	a := localDef(t, r, catalogEntry{})
	b := localDef(t, other, catalogEntryReordered{})
	require.Equal(t, a.VersionHash(), b.VersionHash())
	require.Equal(t, a.Encoded(), b.Encoded())

	names := make([]string, 0, len(a.Fields()))
	for _, f := range a.Fields() {
		names = append(names, f.Name())
	}
	// primitives by size then name, then the remaining groups by name
	require.Equal(t, []string{"price", "stock", "discount", "sku", "meta", "parent", "labels", "variants"}, names)
}

func TestVersionHashDependsOnOrder(t *testing.T) {
	x := NewFieldDef("x", NewSimpleFieldType(INT32), false)
	y := NewFieldDef("y", NewSimpleFieldType(INT64), false)
	require.NotEqual(t, ComputeVersionHash([]FieldDef{x, y}), ComputeVersionHash([]FieldDef{y, x}))
	require.NotZero(t, ComputeVersionHash(nil))

	list := NewFieldDef("l", NewCollectionFieldType(NewSimpleFieldType(INT32)), true)
	set := NewFieldDef("l", NewCollectionFieldType(NewSimpleFieldType(INT64)), true)
	require.NotEqual(t, ComputeVersionHash([]FieldDef{list}), ComputeVersionHash([]FieldDef{set}))
}

func TestTypeDefManyFieldsAndLongNames(t *testing.T) {
	fields := make([]FieldDef, 0, 200)
	for i := 0; i < 200; i++ {
		name := fmt.Sprintf("field_%03d_%s", i, strings.Repeat("n", 24))
		fields = append(fields, NewFieldDef(name, NewSimpleFieldType(STRING), false))
	}
	fields = append(fields, NewFieldDef(strings.Repeat("long", 20),
		NewMapFieldType(NewSimpleFieldType(STRING), NewCollectionFieldType(NewSimpleFieldType(INT64))), true))
	def := &TypeDef{typeId: 42<<8 | COMPATIBLE_STRUCT, fieldDefs: fields}
	require.NoError(t, encodeTypeDef(def))
	require.Greater(t, len(def.Encoded()), META_SIZE_MASK)

	got, _ := readDef(t, def.Encoded())
	require.Equal(t, def.TypeId(), got.TypeId())
	requireSameFields(t, fields, got.Fields())
}

func TestTypeDefCorruption(t *testing.T) {
	r := NewTypeRegistry()
	require.NoError(t, r.RegisterNamedStruct(catalogEntry{}, "shop", "Entry"))
	encoded := localDef(t, r, catalogEntry{}).Encoded()

	corrupted := append([]byte(nil), encoded...)
	corrupted[len(corrupted)-1] ^= 0xFF
	ctx := newReadContext(NewTypeRegistry(), NewMetaContext(), DefaultConfig())
	ctx.SetData(corrupted)
	_, err := ctx.readTypeDef()
	var desync *ProtocolDesyncError
	require.ErrorAs(t, err, &desync)

	ctx.SetData(encoded[:len(encoded)-3])
	_, err = ctx.readTypeDef()
	require.ErrorAs(t, err, &desync)

	ctx.SetData(encoded[:5])
	_, err = ctx.readTypeDef()
	require.ErrorAs(t, err, &desync)
}

func TestSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"Name":       "name",
		"UserID":     "user_id",
		"HTTPServer": "http_server",
		"Field2Name": "field2_name",
		"already":    "already",
		"ABC":        "abc",
	} {
		require.Equal(t, want, SnakeCase(in), in)
	}
}
