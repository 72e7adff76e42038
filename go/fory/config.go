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
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds configuration options for Fory instances. The zero value is
// not meaningful; start from DefaultConfig or ParseConfig.
type Config struct {
	// RefTracking preserves shared and cyclic references.
	RefTracking bool `yaml:"ref_tracking"`
	// MaxDepth bounds value nesting on both encode and decode.
	MaxDepth int `yaml:"max_depth"`
	// Compatible sends a TypeDef with every struct type so readers with a
	// different version of the type can still decode it.
	Compatible bool `yaml:"compatible"`
	// RequireRegistration rejects unregistered struct types on write.
	RequireRegistration bool `yaml:"require_registration"`
	// CheckVersion embeds each struct's version hash before its fields.
	CheckVersion bool `yaml:"check_version"`
	// SharedMetaContext keeps shared TypeDefs alive across top-level calls.
	SharedMetaContext bool `yaml:"shared_meta_context"`
	// TypeDefCacheSize bounds the decoded TypeDef cache of a registry created
	// for this instance.
	TypeDefCacheSize int `yaml:"typedef_cache_size"`

	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns the configuration used by New with no options.
func DefaultConfig() Config {
	return Config{
		RefTracking:      true,
		MaxDepth:         100,
		CheckVersion:     true,
		TypeDefCacheSize: defaultTypeDefCacheSize,
	}
}

// ParseConfig decodes YAML on top of DefaultConfig. Unknown keys are
// rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("parsing fory config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading fory config: %w", err)
	}
	return ParseConfig(data)
}

func (c Config) validate() error {
	if c.MaxDepth <= 0 {
		return fmt.Errorf("fory config: max_depth must be positive, got %d", c.MaxDepth)
	}
	if c.TypeDefCacheSize < 0 {
		return fmt.Errorf("fory config: typedef_cache_size must not be negative, got %d", c.TypeDefCacheSize)
	}
	return nil
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Option is a function that configures a Fory instance
type Option func(*Fory)

// WithConfig replaces the whole configuration. Options after it still apply.
func WithConfig(cfg Config) Option {
	return func(f *Fory) {
		f.config = cfg
	}
}

// WithRefTracking sets reference tracking mode
func WithRefTracking(enabled bool) Option {
	return func(f *Fory) {
		f.config.RefTracking = enabled
	}
}

// WithMaxDepth sets the maximum serialization depth
func WithMaxDepth(depth int) Option {
	return func(f *Fory) {
		f.config.MaxDepth = depth
	}
}

// WithCompatible sets schema evolution compatibility mode
func WithCompatible(enabled bool) Option {
	return func(f *Fory) {
		f.config.Compatible = enabled
	}
}

// WithRequireRegistration switches between strict and permissive type
// registration.
func WithRequireRegistration(enabled bool) Option {
	return func(f *Fory) {
		f.config.RequireRegistration = enabled
	}
}

func WithCheckVersion(enabled bool) Option {
	return func(f *Fory) {
		f.config.CheckVersion = enabled
	}
}

// WithSharedMetaContext keeps TypeDefs shared by one call available to later
// calls on the same instance. Both peers must enable it and exchange streams
// in order.
func WithSharedMetaContext(enabled bool) Option {
	return func(f *Fory) {
		f.config.SharedMetaContext = enabled
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *Fory) {
		f.config.Logger = logger
	}
}

// WithRegistry makes the instance use a registry shared with other
// instances instead of creating its own.
func WithRegistry(registry *TypeRegistry) Option {
	return func(f *Fory) {
		f.registry = registry
	}
}
