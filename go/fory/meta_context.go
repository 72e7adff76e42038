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

// MetaContext holds the TypeDefs and meta strings already sent (or
// received) on one stream, so later occurrences are written as indexes.
// A context normally lives for one top-level call; with a shared meta
// context it spans calls until reset.
type MetaContext struct {
	defIndex    map[int64]uint32
	readInfos   []*TypeInfo
	strings     map[string]uint32
	readStrings []string
	// poisoned is set when a call failed with state half-written
	poisoned bool
}

func NewMetaContext() *MetaContext {
	return &MetaContext{
		defIndex: make(map[int64]uint32),
		strings:  make(map[string]uint32),
	}
}

// Reset forgets every definition and string, and clears poisoning.
func (m *MetaContext) Reset() {
	clear(m.defIndex)
	clear(m.readInfos)
	m.readInfos = m.readInfos[:0]
	clear(m.strings)
	m.readStrings = m.readStrings[:0]
	m.poisoned = false
}

// Len returns the number of definitions known to the context.
func (m *MetaContext) Len() int {
	return max(len(m.defIndex), len(m.readInfos))
}

// writeSharedTypeDef writes (index<<1)|1 and the definition bytes the first
// time def is seen in this context, index<<1 afterwards.
func (c *WriteContext) writeSharedTypeDef(def *TypeDef) {
	buf := c.buffer
	if idx, ok := c.meta.defIndex[def.id]; ok {
		buf.WriteVarUint32(idx << 1)
		return
	}
	idx := uint32(len(c.meta.defIndex))
	c.meta.defIndex[def.id] = idx
	buf.WriteVarUint32(idx<<1 | 1)
	buf.WriteBinary(def.encoded)
}

// readSharedTypeDef resolves the definition marker following a compatible
// struct type id.
func (c *ReadContext) readSharedTypeDef(id TypeId) (*TypeInfo, error) {
	buf := c.buffer
	marker := buf.ReadVarUint32()
	idx := int(marker >> 1)
	if marker&1 == 0 {
		if idx >= len(c.meta.readInfos) {
			return nil, desyncf(buf, "type definition index %d referenced before it was sent (%d known)", idx, len(c.meta.readInfos))
		}
		info := c.meta.readInfos[idx]
		if info.def.typeId != id {
			return nil, desyncf(buf, "type definition %d belongs to type id %d, stream says %d", idx, info.def.typeId, id)
		}
		return info, nil
	}
	if idx != len(c.meta.readInfos) {
		return nil, desyncf(buf, "new type definition at index %d, expected %d", idx, len(c.meta.readInfos))
	}
	def, err := c.readTypeDef()
	if err != nil {
		return nil, err
	}
	if def.typeId != id {
		return nil, desyncf(buf, "type definition for type id %d follows type id %d", def.typeId, id)
	}
	info := c.registry.typeInfoForDef(def)
	c.meta.readInfos = append(c.meta.readInfos, info)
	return info, nil
}

// writeMetaString writes a namespace or type name, deduplicated per context.
func (c *WriteContext) writeMetaString(s string) {
	buf := c.buffer
	if idx, ok := c.meta.strings[s]; ok {
		buf.WriteVarUint32(idx<<1 | 1)
		return
	}
	c.meta.strings[s] = uint32(len(c.meta.strings))
	buf.WriteVarUint32(uint32(len(s)) << 1)
	buf.WriteBinary([]byte(s))
}

func (c *ReadContext) readMetaString() (string, error) {
	buf := c.buffer
	header := buf.ReadVarUint32()
	if header&1 == 1 {
		idx := int(header >> 1)
		if idx >= len(c.meta.readStrings) {
			return "", desyncf(buf, "meta string %d referenced before it was sent", idx)
		}
		return c.meta.readStrings[idx], nil
	}
	n := int(header >> 1)
	if n > buf.Remaining() {
		return "", desyncf(buf, "meta string of %d bytes exceeds remaining %d", n, buf.Remaining())
	}
	s := string(buf.ReadBinary(n))
	c.meta.readStrings = append(c.meta.readStrings, s)
	return s, nil
}
