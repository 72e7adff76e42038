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

import "reflect"

// readArray fills a Go array from a list payload. Elements beyond the
// array's length are decoded and dropped; missing ones stay zero.
func readArray(ctx *ReadContext, e elemCodec, n int, array reflect.Value) error {
	var spill reflect.Value
	for i := 0; i < n; i++ {
		if i < array.Len() {
			if err := ctx.readElem(e, array.Index(i)); err != nil {
				return err
			}
			continue
		}
		if !spill.IsValid() {
			spill = reflect.New(array.Type().Elem()).Elem()
		}
		if err := ctx.readElem(e, spill); err != nil {
			return err
		}
	}
	return nil
}
