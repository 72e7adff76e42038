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

package threadsafe

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chaokunyang/fory/go/fory"
)

type event struct {
	ID    int64
	Kind  string
	Attrs map[string]string
}

func TestConcurrentRoundTrips(t *testing.T) {
	f := New(fory.WithCompatible(true))
	require.NoError(t, f.RegisterNamedStruct(event{}, "audit", "Event"))

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for g := 0; g < 32; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				in := event{ID: int64(g*1000 + i), Kind: fmt.Sprintf("k%d", g), Attrs: map[string]string{"i": fmt.Sprint(i)}}
				data, err := f.Serialize(&in)
				if err != nil {
					errs <- err
					return
				}
				var out event
				if err := f.Deserialize(data, &out); err != nil {
					errs <- err
					return
				}
				if out.ID != in.ID || out.Attrs["i"] != in.Attrs["i"] {
					errs <- fmt.Errorf("got %+v, want %+v", out, in)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestRegistrationIsShared(t *testing.T) {
	f := New()
	require.NoError(t, f.RegisterStruct(event{}, 4))
	// instances created after registration see it through the shared registry
	inners := []*fory.Fory{f.acquire(), f.acquire()}
	for _, inner := range inners {
		require.Same(t, f.Registry(), inner.Registry())
	}
	for _, inner := range inners {
		f.release(inner)
	}

	data, err := Serialize(f, event{ID: 1, Kind: "x"})
	require.NoError(t, err)
	out, err := Deserialize[event](f, data)
	require.NoError(t, err)
	require.Equal(t, event{ID: 1, Kind: "x"}, out)
}

func TestGlobalHelpers(t *testing.T) {
	data, err := Marshal([]int32{1, 2, 3})
	require.NoError(t, err)
	out, err := Unmarshal[[]int32](data)
	require.NoError(t, err)
	require.Equal(t, []int32{1, 2, 3}, out)

	var into []int32
	require.NoError(t, UnmarshalTo(data, &into))
	require.Equal(t, out, into)
}
