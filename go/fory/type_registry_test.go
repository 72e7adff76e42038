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
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type regA struct{ V int32 }
type regB struct{ V string }

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewTypeRegistry()
	require.NoError(t, r.RegisterStruct(regA{}, 1))
	require.NoError(t, r.RegisterStruct(&regA{}, 1))
	require.NoError(t, r.RegisterNamedStruct(regB{}, "ns", "B"))
	require.NoError(t, r.RegisterNamedStruct(regB{}, "ns", "B"))

	info := r.registeredInfo(reflect.TypeOf(regA{}))
	require.True(t, info.IsRegistered())
	require.Equal(t, TypeId(1<<8|STRUCT), info.TypeID)
}

func TestRegisterConflicts(t *testing.T) {
	r := NewTypeRegistry()
	require.NoError(t, r.RegisterStruct(regA{}, 1))
	require.NoError(t, r.RegisterNamedStruct(regB{}, "ns", "B"))

	require.ErrorIs(t, r.RegisterStruct(regA{}, 2), ErrTypeConflict)
	require.ErrorIs(t, r.RegisterStruct(regB{}, 1), ErrTypeConflict)
	require.ErrorIs(t, r.RegisterNamedStruct(regA{}, "ns", "B"), ErrTypeConflict)

	require.Error(t, r.RegisterStruct(42, 3))
	require.Error(t, r.RegisterStruct(regA{}, 1<<24))
	require.Error(t, r.RegisterNamedStruct(regA{}, "ns", ""))
}

func TestStrictModeRejectsAnonymousTypes(t *testing.T) {
	r := NewTypeRegistry()
	_, err := r.typeInfoFor(reflect.TypeOf(regA{}), true)
	var unreg *UnregisteredTypeError
	require.ErrorAs(t, err, &unreg)
	require.Equal(t, reflect.TypeOf(regA{}), unreg.Type)

	info, err := r.typeInfoFor(reflect.TypeOf(regA{}), false)
	require.NoError(t, err)
	require.False(t, info.IsRegistered())
	require.Equal(t, NAMED_COMPATIBLE_STRUCT, info.TypeID)
	require.Equal(t, "regA", info.TypeName)
	require.Equal(t, reflect.TypeOf(regA{}).PkgPath(), info.Namespace)

	// the anonymous identity is remembered but still refused in strict mode
	_, err = r.typeInfoFor(reflect.TypeOf(regA{}), true)
	require.ErrorAs(t, err, &unreg)

	// builtins never need registration
	info, err = r.typeInfoFor(reflect.TypeOf(""), true)
	require.NoError(t, err)
	require.Equal(t, STRING, info.TypeID)

	_, err = r.typeInfoFor(reflect.TypeOf(make(chan int)), false)
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestRegistrationReplacesAnonymousIdentity(t *testing.T) {
	r := NewTypeRegistry()
	anon, err := r.typeInfoFor(reflect.TypeOf(regA{}), false)
	require.NoError(t, err)
	require.Same(t, anon, r.typeInfoByName(anon.Namespace, anon.TypeName))

	require.NoError(t, r.RegisterStruct(regA{}, 9))
	info, err := r.typeInfoFor(reflect.TypeOf(regA{}), true)
	require.NoError(t, err)
	require.Equal(t, TypeId(9<<8|STRUCT), info.TypeID)
	require.Nil(t, r.typeInfoByName(anon.Namespace, anon.TypeName))
}

func TestTypeDefCacheBounds(t *testing.T) {
	_, err := NewTypeDefCache(-1)
	require.Error(t, err)

	disabled, err := NewTypeDefCache(0)
	require.NoError(t, err)
	disabled.add(&TypeDef{id: 1})
	_, ok := disabled.get(1)
	require.False(t, ok)
	require.Zero(t, disabled.Len())

	cache, err := NewTypeDefCache(2)
	require.NoError(t, err)
	for id := int64(1); id <= 3; id++ {
		cache.add(&TypeDef{id: id})
	}
	require.Equal(t, 2, cache.Len())
	_, ok = cache.get(1)
	require.False(t, ok, "oldest definition is evicted")
	def, ok := cache.get(3)
	require.True(t, ok)
	require.Equal(t, int64(3), def.ID())
}

func TestSharedRegistryAcrossInstances(t *testing.T) {
	r := NewTypeRegistry()
	require.NoError(t, r.RegisterStruct(regA{}, 1))
	writer := New(WithRegistry(r))
	reader := New(WithRegistry(r))
	require.Same(t, r, reader.Registry())

	data, err := writer.Serialize(regA{V: 5})
	require.NoError(t, err)
	var out regA
	require.NoError(t, reader.Deserialize(data, &out))
	require.Equal(t, regA{V: 5}, out)
}

func TestPlansAreBuiltOnceUnderConcurrency(t *testing.T) {
	r := NewTypeRegistry()
	require.NoError(t, r.RegisterStruct(catalogEntry{}, 1))
	typ := reflect.TypeOf(catalogEntry{})

	plans := make([]*fieldPlan, 16)
	var wg sync.WaitGroup
	for i := range plans {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := r.planFor(typ, nil, true)
			if err == nil {
				plans[i] = p
			}
		}(i)
	}
	wg.Wait()
	for _, p := range plans {
		require.Same(t, plans[0], p)
	}
}
