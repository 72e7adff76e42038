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
	"sort"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"
)

const (
	META_SIZE_MASK       = 0xFFF
	COMPRESS_META_FLAG   = 0b1 << 13
	HAS_FIELDS_META_FLAG = 0b1 << 12
	NUM_HASH_BITS        = 50

	SMALL_NUM_FIELDS_THRESHOLD = 0b11111
	REGISTER_BY_NAME_FLAG      = 0b100000
	FIELD_NAME_SIZE_THRESHOLD  = 0b11111

	typeDefHashSeed     = 47
	maxFieldTypeNesting = 64
)

/*
TypeDef is the transmissible description of a struct: its identity and
its fields in canonical order. Encoded layout:
  - 8 bytes: global header (50 bits hash | compress flag | has fields flag | 12 bits size)
  - varuint: size - 0xFFF, only when the size field is saturated
  - 1 byte: meta header (2 bits reserved | register by name flag | 5 bits num fields)
  - varuint type id, or namespace and type name
  - field definitions
*/
type TypeDef struct {
	id             int64
	typeId         TypeId
	namespace      string
	typeName       string
	registerByName bool
	fieldDefs      []FieldDef
	versionHash    int32
	encoded        []byte
}

func (td *TypeDef) ID() int64            { return td.id }
func (td *TypeDef) TypeId() TypeId       { return td.typeId }
func (td *TypeDef) Namespace() string    { return td.namespace }
func (td *TypeDef) TypeName() string     { return td.typeName }
func (td *TypeDef) RegisterByName() bool { return td.registerByName }
func (td *TypeDef) VersionHash() int32   { return td.versionHash }

// Fields returns the field definitions in canonical order.
func (td *TypeDef) Fields() []FieldDef {
	return append([]FieldDef(nil), td.fieldDefs...)
}

// Encoded returns the exact bytes this definition was read from or built as.
func (td *TypeDef) Encoded() []byte {
	return append([]byte(nil), td.encoded...)
}

func (td *TypeDef) String() string {
	var sb strings.Builder
	if td.registerByName {
		if td.namespace != "" {
			sb.WriteString(td.namespace)
			sb.WriteByte('.')
		}
		sb.WriteString(td.typeName)
	} else {
		fmt.Fprintf(&sb, "#%d", td.typeId>>8)
	}
	sb.WriteByte('{')
	for i, f := range td.fieldDefs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.name)
		sb.WriteByte(' ')
		sb.WriteString(fieldTypeTag(f.fieldType))
		if f.nullable {
			sb.WriteByte('?')
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

// FieldDef describes one struct field.
type FieldDef struct {
	name        string
	fieldType   FieldType
	nullable    bool
	trackingRef bool
}

func NewFieldDef(name string, fieldType FieldType, nullable bool) FieldDef {
	return FieldDef{name: name, fieldType: fieldType, nullable: nullable}
}

func (f FieldDef) Name() string         { return f.name }
func (f FieldDef) FieldType() FieldType { return f.fieldType }
func (f FieldDef) Nullable() bool       { return f.nullable }
func (f FieldDef) TrackingRef() bool    { return f.trackingRef }

// FieldType is the declared type of a field or of a container position.
type FieldType interface {
	TypeId() TypeId
	// Nullable reports whether values at a nested position may be null.
	// Top-level nullability lives in FieldDef.
	Nullable() bool
	write(buf *ByteBuffer, nested bool)
}

type BaseFieldType struct {
	typeId   TypeId
	nullable bool
}

func (b *BaseFieldType) TypeId() TypeId { return b.typeId }
func (b *BaseFieldType) Nullable() bool { return b.nullable }

func (b *BaseFieldType) writeId(buf *ByteBuffer, nested bool) {
	if !nested {
		buf.WriteVarUint32(b.typeId)
		return
	}
	v := b.typeId << 1
	if b.nullable {
		v |= 1
	}
	buf.WriteVarUint32(v)
}

// SimpleFieldType is a scalar, string, binary or extension type.
type SimpleFieldType struct {
	BaseFieldType
}

func NewSimpleFieldType(typeId TypeId) *SimpleFieldType {
	return &SimpleFieldType{BaseFieldType{typeId: typeId}}
}

func (s *SimpleFieldType) write(buf *ByteBuffer, nested bool) { s.writeId(buf, nested) }

// CollectionFieldType is a list with a declared element type.
type CollectionFieldType struct {
	BaseFieldType
	elementType FieldType
}

func NewCollectionFieldType(elementType FieldType) *CollectionFieldType {
	return &CollectionFieldType{BaseFieldType: BaseFieldType{typeId: LIST}, elementType: elementType}
}

func (c *CollectionFieldType) ElementType() FieldType { return c.elementType }

func (c *CollectionFieldType) write(buf *ByteBuffer, nested bool) {
	c.writeId(buf, nested)
	c.elementType.write(buf, true)
}

// MapFieldType is a map with declared key and value types.
type MapFieldType struct {
	BaseFieldType
	keyType   FieldType
	valueType FieldType
}

func NewMapFieldType(keyType, valueType FieldType) *MapFieldType {
	return &MapFieldType{BaseFieldType: BaseFieldType{typeId: MAP}, keyType: keyType, valueType: valueType}
}

func (m *MapFieldType) KeyType() FieldType   { return m.keyType }
func (m *MapFieldType) ValueType() FieldType { return m.valueType }

func (m *MapFieldType) write(buf *ByteBuffer, nested bool) {
	m.writeId(buf, nested)
	m.keyType.write(buf, true)
	m.valueType.write(buf, true)
}

// DynamicFieldType is a position whose concrete type travels with each
// value: interfaces and structs. concrete marks a registered struct in
// non-compatible mode, which is written without type info.
type DynamicFieldType struct {
	BaseFieldType
	concrete bool
}

func NewDynamicFieldType(typeId TypeId) *DynamicFieldType {
	return &DynamicFieldType{BaseFieldType: BaseFieldType{typeId: typeId}}
}

func (d *DynamicFieldType) write(buf *ByteBuffer, nested bool) { d.writeId(buf, nested) }

func setNullable(ft FieldType, nullable bool) {
	switch ft := ft.(type) {
	case *SimpleFieldType:
		ft.nullable = nullable
	case *CollectionFieldType:
		ft.nullable = nullable
	case *MapFieldType:
		ft.nullable = nullable
	case *DynamicFieldType:
		ft.nullable = nullable
	}
}

func isNullableType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		return true
	case reflect.Struct:
		_, ok := optionalElem(t)
		return ok
	}
	return false
}

// sameFieldType compares two field types structurally, including the
// nullability of nested positions.
func sameFieldType(a, b FieldType) bool {
	if a.TypeId() != b.TypeId() {
		return false
	}
	switch a := a.(type) {
	case *CollectionFieldType:
		b, ok := b.(*CollectionFieldType)
		return ok && a.elementType.Nullable() == b.elementType.Nullable() &&
			sameFieldType(a.elementType, b.elementType)
	case *MapFieldType:
		b, ok := b.(*MapFieldType)
		return ok && a.keyType.Nullable() == b.keyType.Nullable() &&
			a.valueType.Nullable() == b.valueType.Nullable() &&
			sameFieldType(a.keyType, b.keyType) && sameFieldType(a.valueType, b.valueType)
	case *SimpleFieldType:
		_, ok := b.(*SimpleFieldType)
		return ok
	case *DynamicFieldType:
		_, ok := b.(*DynamicFieldType)
		return ok
	}
	return false
}

// buildFieldType derives the declared type of a Go type. In compatible mode
// struct positions are always dynamic, since their definition travels with
// the value.
func buildFieldType(r *TypeRegistry, t reflect.Type, compatible bool) (FieldType, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if info := r.registeredInfo(t); info != nil && internalTypeId(info.TypeID) == EXT {
		return NewSimpleFieldType(info.TypeID), nil
	}
	if elem, ok := optionalElem(t); ok {
		if err := validateOptionalValueType(elem); err != nil {
			return nil, err
		}
		return buildFieldType(r, elem, compatible)
	}
	switch t.Kind() {
	case reflect.Interface:
		return NewDynamicFieldType(UNKNOWN), nil
	case reflect.Struct:
		info := r.registeredInfo(t)
		switch {
		case info == nil:
			return NewDynamicFieldType(NAMED_COMPATIBLE_STRUCT), nil
		case compatible:
			return NewDynamicFieldType(info.compatibleTypeId()), nil
		default:
			ft := NewDynamicFieldType(info.TypeID)
			ft.concrete = true
			return ft, nil
		}
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return NewSimpleFieldType(BINARY), nil
		}
		elem, err := buildNestedFieldType(r, t.Elem(), compatible)
		if err != nil {
			return nil, err
		}
		return NewCollectionFieldType(elem), nil
	case reflect.Array:
		elem, err := buildNestedFieldType(r, t.Elem(), compatible)
		if err != nil {
			return nil, err
		}
		return NewCollectionFieldType(elem), nil
	case reflect.Map:
		key, err := buildNestedFieldType(r, t.Key(), compatible)
		if err != nil {
			return nil, err
		}
		value, err := buildNestedFieldType(r, t.Elem(), compatible)
		if err != nil {
			return nil, err
		}
		return NewMapFieldType(key, value), nil
	case reflect.String:
		return NewSimpleFieldType(STRING), nil
	}
	id := kindTypeId(t)
	if id == UNKNOWN {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, t)
	}
	return NewSimpleFieldType(id), nil
}

func buildNestedFieldType(r *TypeRegistry, t reflect.Type, compatible bool) (FieldType, error) {
	if _, ok := optionalElem(t); ok {
		return nil, fmt.Errorf("%w: %v is only supported as a struct field", ErrUnsupportedType, t)
	}
	ft, err := buildFieldType(r, t, compatible)
	if err != nil {
		return nil, err
	}
	setNullable(ft, isNullableType(t))
	return ft, nil
}

// buildFieldDefs describes the exported fields of struct t in canonical order.
func buildFieldDefs(r *TypeRegistry, t reflect.Type, compatible, trackRef bool) ([]FieldDef, error) {
	fields, err := structFields(t)
	if err != nil {
		return nil, err
	}
	defs := make([]FieldDef, 0, len(fields))
	for _, f := range fields {
		ft, err := buildFieldType(r, f.type_, compatible)
		if err != nil {
			return nil, fmt.Errorf("field %s of %v: %w", f.name, t, err)
		}
		def := FieldDef{name: f.name, fieldType: ft, nullable: isNullableType(f.type_)}
		def.trackingRef = trackRef && fieldGroupOf(def) != PrimitiveGroup
		defs = append(defs, def)
	}
	sortFieldDefs(defs)
	return defs, nil
}

// sortFieldDefs puts fields in canonical order: primitives (fixed width
// before varint, then larger first), then final, other and container
// groups. Ties break by name.
func sortFieldDefs(defs []FieldDef) {
	sort.SliceStable(defs, func(i, j int) bool {
		a, b := defs[i], defs[j]
		ga, gb := fieldGroupOf(a), fieldGroupOf(b)
		if ga != gb {
			return ga < gb
		}
		ida, idb := a.fieldType.TypeId(), b.fieldType.TypeId()
		switch ga {
		case PrimitiveGroup:
			if va, vb := isVarintTypeId(ida), isVarintTypeId(idb); va != vb {
				return vb
			}
			if sa, sb := primitiveSize(ida), primitiveSize(idb); sa != sb {
				return sa > sb
			}
		case FinalGroup:
			if ida != idb {
				return ida < idb
			}
		}
		return a.name < b.name
	})
}

func buildTypeDef(r *TypeRegistry, info *TypeInfo, trackRef bool) (*TypeDef, error) {
	defs, err := buildFieldDefs(r, info.Type, true, trackRef)
	if err != nil {
		return nil, err
	}
	def := &TypeDef{
		typeId:         info.compatibleTypeId(),
		namespace:      info.Namespace,
		typeName:       info.TypeName,
		registerByName: info.byName || info.anonymous,
		fieldDefs:      defs,
		versionHash:    ComputeVersionHash(defs),
	}
	if err := encodeTypeDef(def); err != nil {
		return nil, err
	}
	return def, nil
}

func encodeTypeDef(def *TypeDef) error {
	body := NewByteBuffer(nil)
	n := len(def.fieldDefs)
	metaHeader := byte(min(n, SMALL_NUM_FIELDS_THRESHOLD))
	if def.registerByName {
		metaHeader |= REGISTER_BY_NAME_FLAG
	}
	body.WriteByte_(metaHeader)
	if n >= SMALL_NUM_FIELDS_THRESHOLD {
		body.WriteVarUint32(uint32(n - SMALL_NUM_FIELDS_THRESHOLD))
	}
	if def.registerByName {
		writeDefName(body, def.namespace)
		writeDefName(body, def.typeName)
	} else {
		body.WriteVarUint32(def.typeId)
	}
	for _, f := range def.fieldDefs {
		if err := writeFieldDef(body, f); err != nil {
			return err
		}
	}
	payload := body.Bytes()
	header := typeDefHeader(payload, n > 0)
	out := NewByteBuffer(make([]byte, 0, len(payload)+12))
	out.WriteInt64(header)
	if len(payload) >= META_SIZE_MASK {
		out.WriteVarUint32(uint32(len(payload) - META_SIZE_MASK))
	}
	out.WriteBinary(payload)
	def.id = header
	def.encoded = out.Bytes()
	return nil
}

func typeDefHeader(body []byte, hasFields bool) int64 {
	hash := murmur3.Sum64WithSeed(body, typeDefHashSeed)
	header := int64(hash << (64 - NUM_HASH_BITS))
	if hasFields {
		header |= HAS_FIELDS_META_FLAG
	}
	header |= int64(min(len(body), META_SIZE_MASK))
	return header
}

const typeDefHeaderFlagsMask = 1<<(64-NUM_HASH_BITS) - 1

func writeDefName(buf *ByteBuffer, s string) {
	buf.WriteVarUint32(uint32(len(s)))
	buf.WriteBinary([]byte(s))
}

func readDefName(buf *ByteBuffer) (string, error) {
	n := int(buf.ReadVarUint32())
	if n > buf.Remaining() {
		return "", desyncf(buf, "name of %d bytes exceeds definition", n)
	}
	return string(buf.ReadBinary(n)), nil
}

func writeFieldDef(buf *ByteBuffer, f FieldDef) error {
	if f.name == "" {
		return fmt.Errorf("fory: empty field name")
	}
	var header byte
	if f.trackingRef {
		header |= 0b1
	}
	if f.nullable {
		header |= 0b10
	}
	if d, ok := f.fieldType.(*DynamicFieldType); ok && d.concrete {
		header |= 0b100
	}
	size := len(f.name) - 1
	header |= byte(min(size, FIELD_NAME_SIZE_THRESHOLD)) << 3
	buf.WriteByte_(header)
	if size >= FIELD_NAME_SIZE_THRESHOLD {
		buf.WriteVarUint32(uint32(size - FIELD_NAME_SIZE_THRESHOLD))
	}
	f.fieldType.write(buf, false)
	buf.WriteBinary([]byte(f.name))
	return nil
}

func readFieldDef(buf *ByteBuffer) (FieldDef, error) {
	header := buf.ReadByte_()
	size := int(header >> 3)
	if size == FIELD_NAME_SIZE_THRESHOLD {
		size += int(buf.ReadVarUint32())
	}
	ft, err := readFieldType(buf, false, 0)
	if err != nil {
		return FieldDef{}, err
	}
	if d, ok := ft.(*DynamicFieldType); ok {
		d.concrete = header&0b100 != 0
	}
	size++
	if size > buf.Remaining() {
		return FieldDef{}, desyncf(buf, "field name of %d bytes exceeds definition", size)
	}
	return FieldDef{
		name:        string(buf.ReadBinary(size)),
		fieldType:   ft,
		nullable:    header&0b10 != 0,
		trackingRef: header&0b1 != 0,
	}, nil
}

func readFieldType(buf *ByteBuffer, nested bool, depth int) (FieldType, error) {
	if depth > maxFieldTypeNesting {
		return nil, desyncf(buf, "field type nested deeper than %d", maxFieldTypeNesting)
	}
	id := buf.ReadVarUint32()
	nullable := false
	if nested {
		nullable = id&1 == 1
		id >>= 1
	}
	base := BaseFieldType{typeId: id, nullable: nullable}
	switch internalTypeId(id) {
	case LIST:
		elem, err := readFieldType(buf, true, depth+1)
		if err != nil {
			return nil, err
		}
		return &CollectionFieldType{BaseFieldType: base, elementType: elem}, nil
	case MAP:
		key, err := readFieldType(buf, true, depth+1)
		if err != nil {
			return nil, err
		}
		value, err := readFieldType(buf, true, depth+1)
		if err != nil {
			return nil, err
		}
		return &MapFieldType{BaseFieldType: base, keyType: key, valueType: value}, nil
	case UNKNOWN, STRUCT, COMPATIBLE_STRUCT, NAMED_STRUCT, NAMED_COMPATIBLE_STRUCT:
		return &DynamicFieldType{BaseFieldType: base}, nil
	case EXT:
		return &SimpleFieldType{base}, nil
	}
	if _, ok := builtinTypes[id]; !ok {
		return nil, desyncf(buf, "unknown field type id %d", id)
	}
	return &SimpleFieldType{base}, nil
}

// decodeTypeDef parses a definition body. encoded holds the full bytes
// including the header, kept for verbatim re-encoding.
func decodeTypeDef(body *ByteBuffer, header int64, encoded []byte) (*TypeDef, error) {
	if header&COMPRESS_META_FLAG != 0 {
		return nil, desyncf(body, "compressed type definitions are not supported")
	}
	metaHeader := body.ReadByte_()
	n := int(metaHeader & SMALL_NUM_FIELDS_THRESHOLD)
	if n == SMALL_NUM_FIELDS_THRESHOLD {
		n += int(body.ReadVarUint32())
	}
	if n > body.Remaining() {
		return nil, desyncf(body, "definition declares %d fields in %d bytes", n, body.Remaining())
	}
	def := &TypeDef{id: header, encoded: encoded}
	if metaHeader&REGISTER_BY_NAME_FLAG != 0 {
		var err error
		if def.namespace, err = readDefName(body); err != nil {
			return nil, err
		}
		if def.typeName, err = readDefName(body); err != nil {
			return nil, err
		}
		def.typeId = NAMED_COMPATIBLE_STRUCT
		def.registerByName = true
	} else {
		def.typeId = body.ReadVarUint32()
		if internalTypeId(def.typeId) != COMPATIBLE_STRUCT {
			return nil, desyncf(body, "definition carries non-struct type id %d", def.typeId)
		}
	}
	def.fieldDefs = make([]FieldDef, 0, n)
	for i := 0; i < n; i++ {
		f, err := readFieldDef(body)
		if err != nil {
			return nil, err
		}
		def.fieldDefs = append(def.fieldDefs, f)
	}
	if err := body.Err(); err != nil {
		return nil, desyncf(body, "truncated type definition: %v", err)
	}
	if body.Remaining() != 0 {
		return nil, desyncf(body, "%d trailing bytes in type definition", body.Remaining())
	}
	def.versionHash = ComputeVersionHash(def.fieldDefs)
	return def, nil
}

// readTypeDef reads one inline definition, reusing the cached decode of a
// previously seen header.
func (c *ReadContext) readTypeDef() (*TypeDef, error) {
	buf := c.buffer
	start := buf.ReaderIndex()
	header := buf.ReadInt64()
	size := int(header & META_SIZE_MASK)
	if size == META_SIZE_MASK {
		size += int(buf.ReadVarUint32())
	}
	if err := buf.Err(); err != nil {
		return nil, desyncf(buf, "truncated type definition header")
	}
	if size > buf.Remaining() {
		return nil, desyncf(buf, "type definition of %d bytes exceeds remaining %d", size, buf.Remaining())
	}
	bodyStart := buf.ReaderIndex()
	body := buf.ReadBinary(size)
	if def, ok := c.registry.defs.get(header); ok {
		return def, nil
	}
	expected := typeDefHeader(body, false)
	if header&^typeDefHeaderFlagsMask != expected&^typeDefHeaderFlagsMask {
		return nil, desyncf(buf, "type definition hash does not match its body")
	}
	encoded := append([]byte(nil), buf.Slice(start, bodyStart+size)...)
	def, err := decodeTypeDef(NewByteBuffer(body), header, encoded)
	if err != nil {
		return nil, err
	}
	c.registry.defs.add(def)
	c.logger.Debug("decoded type definition", "def", def.String(), "bytes", len(encoded))
	return def, nil
}

// ComputeVersionHash fingerprints a field list. The hash depends on field
// order, so callers pass fields in canonical order; any declaration order of
// the same fields yields the same canonical order and therefore the same hash.
// Zero is reserved and never returned.
func ComputeVersionHash(fields []FieldDef) int32 {
	var sb strings.Builder
	for _, f := range fields {
		sb.WriteString(f.name)
		sb.WriteByte(',')
		sb.WriteString(fieldTypeTag(f.fieldType))
		sb.WriteByte(';')
	}
	h1, _ := murmur3.Sum128WithSeed([]byte(sb.String()), typeDefHashSeed)
	h := int32(uint32(h1))
	if h == 0 {
		h = 1
	}
	return h
}

func fieldTypeTag(ft FieldType) string {
	id := strconv.FormatUint(uint64(ft.TypeId()), 10)
	switch ft := ft.(type) {
	case *CollectionFieldType:
		return id + "[" + fieldTypeTag(ft.elementType) + "]"
	case *MapFieldType:
		return id + "[" + fieldTypeTag(ft.keyType) + "," + fieldTypeTag(ft.valueType) + "]"
	}
	return id
}

// goTypeFor picks the Go type values of ft decode into when no local field
// declares one.
func (r *TypeRegistry) goTypeFor(ft FieldType, nullable bool) reflect.Type {
	switch ft := ft.(type) {
	case *SimpleFieldType:
		id := ft.TypeId()
		t, ok := builtinTypes[id]
		if !ok {
			info := r.typeInfoById(id)
			if info == nil || info.Type == nil {
				return interfaceType
			}
			t = info.Type
		}
		if nullable && id != BINARY && t.Kind() != reflect.Ptr {
			t = reflect.PtrTo(t)
		}
		return t
	case *CollectionFieldType:
		return reflect.SliceOf(r.goTypeFor(ft.elementType, ft.elementType.Nullable()))
	case *MapFieldType:
		key := r.goTypeFor(ft.keyType, ft.keyType.Nullable())
		if !key.Comparable() {
			key = interfaceType
		}
		return reflect.MapOf(key, r.goTypeFor(ft.valueType, ft.valueType.Nullable()))
	}
	return interfaceType
}
