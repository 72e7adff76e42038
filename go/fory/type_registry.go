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
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTypeDefCacheSize = 1024
	maxUserTypeId           = 1<<24 - 1
)

// TypeInfo describes how one type is identified on the wire and which
// serializer handles its payload.
type TypeInfo struct {
	Type       reflect.Type
	TypeID     TypeId
	Namespace  string
	TypeName   string
	Serializer Serializer

	byName    bool
	anonymous bool
	unknown   bool
	// def is the definition a read-side or placeholder info was built from
	def *TypeDef
	// localDefs caches this type's own TypeDef, indexed by ref tracking
	localDefs [2]atomic.Pointer[TypeDef]
}

// IsRegistered reports whether the type was registered by the caller.
func (i *TypeInfo) IsRegistered() bool {
	return !i.anonymous && !i.unknown && isStructTypeId(i.TypeID) || internalTypeId(i.TypeID) == EXT
}

// compatibleTypeId returns the id written when the TypeDef travels with the value.
func (i *TypeInfo) compatibleTypeId() TypeId {
	if i.byName || i.anonymous {
		return NAMED_COMPATIBLE_STRUCT
	}
	return i.TypeID&^0xff | COMPATIBLE_STRUCT
}

// TypeDefCache is a bounded, concurrency-safe cache of decoded TypeDefs
// keyed by their header. Shared by every registry it is handed to.
type TypeDefCache struct {
	cache *lru.Cache
}

// NewTypeDefCache returns a cache holding up to size definitions. A size of
// zero disables caching.
func NewTypeDefCache(size int) (*TypeDefCache, error) {
	if size == 0 {
		return &TypeDefCache{}, nil
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating typedef cache: %w", err)
	}
	return &TypeDefCache{cache: c}, nil
}

func (c *TypeDefCache) get(id int64) (*TypeDef, bool) {
	if c == nil || c.cache == nil {
		return nil, false
	}
	v, ok := c.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*TypeDef), true
}

func (c *TypeDefCache) add(def *TypeDef) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Add(def.id, def)
}

// Len returns the number of cached definitions.
func (c *TypeDefCache) Len() int {
	if c == nil || c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

type nameKey struct {
	namespace string
	name      string
}

type planKey struct {
	type_  reflect.Type
	defId  int64
	flavor uint8
}

// TypeRegistry maps Go types to wire identities. It is safe for concurrent
// use and is normally shared by every Fory instance of a process or pool;
// per-call state lives in the contexts.
type TypeRegistry struct {
	mu        sync.RWMutex
	byType    map[reflect.Type]*TypeInfo
	byId      map[TypeId]*TypeInfo
	byName    map[nameKey]*TypeInfo
	anonymous map[reflect.Type]*TypeInfo

	defs         *TypeDefCache
	defInfos     sync.Map // int64 -> *TypeInfo
	unknownInfos sync.Map // int64 -> *TypeInfo
	plans        sync.Map // planKey -> *fieldPlan
	planGroup    singleflight.Group

	logger *slog.Logger
}

// RegistryOption configures a TypeRegistry.
type RegistryOption func(*TypeRegistry)

// RegistryTypeDefCache makes the registry use an existing cache.
func RegistryTypeDefCache(cache *TypeDefCache) RegistryOption {
	return func(r *TypeRegistry) {
		r.defs = cache
	}
}

func RegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *TypeRegistry) {
		r.logger = logger
	}
}

func NewTypeRegistry(opts ...RegistryOption) *TypeRegistry {
	r := &TypeRegistry{
		byType:    make(map[reflect.Type]*TypeInfo),
		byId:      make(map[TypeId]*TypeInfo),
		byName:    make(map[nameKey]*TypeInfo),
		anonymous: make(map[reflect.Type]*TypeInfo),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.defs == nil {
		r.defs, _ = NewTypeDefCache(defaultTypeDefCacheSize)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// TypeDefCache returns the decoded definition cache.
func (r *TypeRegistry) TypeDefCache() *TypeDefCache {
	return r.defs
}

func resolveType(type_ any) reflect.Type {
	t, ok := type_.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(type_)
	}
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// RegisterStruct registers a struct type under a caller-chosen id. Calling it
// again with the same type and id is a no-op.
func (r *TypeRegistry) RegisterStruct(type_ any, id uint32) error {
	t := resolveType(type_)
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("fory: RegisterStruct needs a struct type, got %v", t)
	}
	if id > maxUserTypeId {
		return fmt.Errorf("fory: type id %d exceeds %d", id, maxUserTypeId)
	}
	info := &TypeInfo{Type: t, TypeID: id<<8 | STRUCT}
	info.Serializer = &structSerializer{type_: t, info: info}
	return r.register(info)
}

// RegisterNamedStruct registers a struct type under a namespace and name.
func (r *TypeRegistry) RegisterNamedStruct(type_ any, namespace, typeName string) error {
	t := resolveType(type_)
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("fory: RegisterNamedStruct needs a struct type, got %v", t)
	}
	if typeName == "" {
		return fmt.Errorf("fory: empty type name for %v", t)
	}
	info := &TypeInfo{Type: t, TypeID: NAMED_STRUCT, Namespace: namespace, TypeName: typeName, byName: true}
	info.Serializer = &structSerializer{type_: t, info: info}
	return r.register(info)
}

// RegisterExtension binds a custom codec to a type under a caller-chosen id.
func (r *TypeRegistry) RegisterExtension(type_ any, id uint32, codec ExtensionSerializer) error {
	t := resolveType(type_)
	if t == nil {
		return fmt.Errorf("fory: RegisterExtension needs a type")
	}
	if id > maxUserTypeId {
		return fmt.Errorf("fory: type id %d exceeds %d", id, maxUserTypeId)
	}
	info := &TypeInfo{Type: t, TypeID: id<<8 | EXT}
	info.Serializer = &extensionSerializer{type_: t, codec: codec}
	return r.register(info)
}

func sameRegistration(a, b *TypeInfo) bool {
	return a.TypeID == b.TypeID && a.Namespace == b.Namespace && a.TypeName == b.TypeName
}

func (r *TypeRegistry) register(info *TypeInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byType[info.Type]; ok {
		if sameRegistration(existing, info) {
			return nil
		}
		return fmt.Errorf("%w: %v is already registered as %s", ErrTypeConflict, info.Type, describeInfo(existing))
	}
	if info.byName {
		key := nameKey{info.Namespace, info.TypeName}
		if other, ok := r.byName[key]; ok && !other.anonymous {
			return fmt.Errorf("%w: name %s.%s is already taken by %v", ErrTypeConflict, info.Namespace, info.TypeName, other.Type)
		}
		r.byName[key] = info
	} else {
		if other, ok := r.byId[info.TypeID]; ok {
			return fmt.Errorf("%w: id %d is already taken by %v", ErrTypeConflict, info.TypeID>>8, other.Type)
		}
		r.byId[info.TypeID] = info
	}
	r.byType[info.Type] = info
	if anon, ok := r.anonymous[info.Type]; ok {
		delete(r.anonymous, info.Type)
		key := nameKey{anon.Namespace, anon.TypeName}
		if r.byName[key] == anon {
			delete(r.byName, key)
		}
	}
	r.invalidateLocked()
	return nil
}

// invalidateLocked drops everything derived from earlier registrations:
// definitions seen before may now resolve locally, and local TypeDefs and
// plans of other structs may name this type by its anonymous identity.
func (r *TypeRegistry) invalidateLocked() {
	r.defInfos.Range(func(k, _ any) bool {
		r.defInfos.Delete(k)
		return true
	})
	r.plans.Range(func(k, _ any) bool {
		r.plans.Delete(k)
		return true
	})
	for _, info := range r.byType {
		info.localDefs[0].Store(nil)
		info.localDefs[1].Store(nil)
	}
	for _, info := range r.anonymous {
		info.localDefs[0].Store(nil)
		info.localDefs[1].Store(nil)
	}
}

func describeInfo(info *TypeInfo) string {
	if info.byName {
		return fmt.Sprintf("%s.%s", info.Namespace, info.TypeName)
	}
	return fmt.Sprintf("id %d", info.TypeID>>8)
}

// typeInfoFor resolves the write-side identity of t. Pointers must already
// be dereferenced. In strict mode unregistered structs fail.
func (r *TypeRegistry) typeInfoFor(t reflect.Type, strict bool) (*TypeInfo, error) {
	r.mu.RLock()
	info, ok := r.byType[t]
	if !ok {
		info, ok = r.anonymous[t]
	}
	r.mu.RUnlock()
	if ok {
		if info.anonymous && strict {
			return nil, &UnregisteredTypeError{Type: t}
		}
		return info, nil
	}
	if t.Kind() == reflect.Struct {
		if strict {
			return nil, &UnregisteredTypeError{Type: t}
		}
		return r.anonymousInfo(t), nil
	}
	if info := builtinInfoForType(t); info != nil {
		return info, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, t)
}

// anonymousInfo creates the identity of an unregistered struct. Its name is
// learned so that a stream written by this process resolves back to t.
func (r *TypeRegistry) anonymousInfo(t reflect.Type) *TypeInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.anonymous[t]; ok {
		return info
	}
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	info := &TypeInfo{
		Type:      t,
		TypeID:    NAMED_COMPATIBLE_STRUCT,
		Namespace: t.PkgPath(),
		TypeName:  name,
		anonymous: true,
	}
	info.Serializer = &structSerializer{type_: t, info: info}
	r.anonymous[t] = info
	key := nameKey{info.Namespace, info.TypeName}
	if _, taken := r.byName[key]; !taken {
		r.byName[key] = info
	}
	r.logger.Debug("assigned anonymous type identity", "type", t.String())
	return info
}

// registeredInfo returns the caller registration of t, if any.
func (r *TypeRegistry) registeredInfo(t reflect.Type) *TypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[t]
}

func (r *TypeRegistry) typeInfoById(id TypeId) *TypeInfo {
	if info, ok := builtinInfos[id]; ok {
		return info
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byId[id]
}

func (r *TypeRegistry) typeInfoByName(namespace, name string) *TypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[nameKey{namespace, name}]
}

// localTypeFor finds the registered struct a transmitted definition refers to.
func (r *TypeRegistry) localTypeFor(def *TypeDef) *TypeInfo {
	var info *TypeInfo
	if def.registerByName {
		info = r.typeInfoByName(def.namespace, def.typeName)
	} else {
		info = r.typeInfoById(def.typeId&^0xff | STRUCT)
	}
	if info == nil || info.Type.Kind() != reflect.Struct {
		return nil
	}
	return info
}

// typeInfoForDef returns the read-side identity for a transmitted
// definition: the local type when one claims it, a placeholder otherwise.
func (r *TypeRegistry) typeInfoForDef(def *TypeDef) *TypeInfo {
	if v, ok := r.defInfos.Load(def.id); ok {
		return v.(*TypeInfo)
	}
	local := r.localTypeFor(def)
	var info *TypeInfo
	if local == nil {
		info = r.unknownInfo(def)
		r.logger.Debug("no local type for definition, decoding as placeholder",
			"namespace", def.namespace, "type", def.typeName, "type_id", def.typeId)
	} else {
		info = &TypeInfo{
			Type:      local.Type,
			TypeID:    def.typeId,
			Namespace: def.namespace,
			TypeName:  def.typeName,
			byName:    def.registerByName,
			def:       def,
		}
		info.Serializer = &structSerializer{type_: local.Type, info: local, def: def}
	}
	actual, _ := r.defInfos.LoadOrStore(def.id, info)
	return actual.(*TypeInfo)
}

func (r *TypeRegistry) unknownInfo(def *TypeDef) *TypeInfo {
	if v, ok := r.unknownInfos.Load(def.id); ok {
		return v.(*TypeInfo)
	}
	info := &TypeInfo{
		Type:       unknownStructTyp,
		TypeID:     def.typeId,
		Namespace:  def.namespace,
		TypeName:   def.typeName,
		byName:     def.registerByName,
		unknown:    true,
		def:        def,
		Serializer: &unknownStructSerializer{def: def},
	}
	actual, _ := r.unknownInfos.LoadOrStore(def.id, info)
	return actual.(*TypeInfo)
}

// typeDefFor returns the TypeDef describing a local struct type.
func (r *TypeRegistry) typeDefFor(info *TypeInfo, trackRef bool) (*TypeDef, error) {
	slot := &info.localDefs[0]
	if trackRef {
		slot = &info.localDefs[1]
	}
	if def := slot.Load(); def != nil {
		return def, nil
	}
	def, err := buildTypeDef(r, info, trackRef)
	if err != nil {
		return nil, err
	}
	if !slot.CompareAndSwap(nil, def) {
		return slot.Load(), nil
	}
	r.logger.Debug("built type definition", "type", info.Type.String(),
		"fields", len(def.fieldDefs), "version_hash", def.versionHash)
	return def, nil
}

const (
	planLocal uint8 = iota
	planLocalTracked
	planFromDef
)

// planFor returns the cached dispatch plan for decoding or encoding t with
// def, or with t's own non-compatible layout when def is nil. Plans are
// built at most once per key and never mutated after publication.
func (r *TypeRegistry) planFor(t reflect.Type, def *TypeDef, trackRef bool) (*fieldPlan, error) {
	key := planKey{type_: t, flavor: planLocal}
	switch {
	case def != nil:
		key.defId = def.id
		key.flavor = planFromDef
	case trackRef:
		key.flavor = planLocalTracked
	}
	if p, ok := r.plans.Load(key); ok {
		return p.(*fieldPlan), nil
	}
	v, err, _ := r.planGroup.Do(fmt.Sprintf("%p/%d/%d", t, key.defId, key.flavor), func() (any, error) {
		if p, ok := r.plans.Load(key); ok {
			return p, nil
		}
		p, err := newFieldPlan(r, t, def, trackRef)
		if err != nil {
			return nil, err
		}
		actual, _ := r.plans.LoadOrStore(key, p)
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*fieldPlan), nil
}
