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

// Command forydump decodes a Fory stream without any registered types and
// prints what it contains. Structs arrive as placeholders built from the
// TypeDefs in the stream, so the stream must be written in compatible mode
// or with unregistered types for their fields to be visible.
package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/chaokunyang/fory/go/fory"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "forydump: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("forydump", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.StringP("config", "c", "", "YAML file with Fory options")
	hexInput := flags.Bool("hex", false, "input is hex encoded")
	reencode := flags.Bool("verify", false, "re-encode the decoded value and compare bytes")
	verbose := flags.BoolP("verbose", "v", false, "log decoding details to stderr")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: forydump [flags] <file|->")
	}

	cfg := fory.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = fory.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	data, err := readInput(flags.Arg(0), *hexInput)
	if err != nil {
		return err
	}
	f := fory.New(fory.WithConfig(cfg))
	value, err := f.DeserializeAny(data)
	if err != nil {
		return err
	}
	p := &printer{w: stdout, seen: make(map[*fory.UnknownStruct]bool)}
	p.print(value, 0)
	fmt.Fprintln(stdout)
	for _, m := range f.SchemaMismatches() {
		fmt.Fprintf(stdout, "schema mismatch: %v\n", m)
	}
	if *reencode {
		out, err := f.SerializeAny(value)
		if err != nil {
			return fmt.Errorf("re-encoding: %w", err)
		}
		if !bytes.Equal(out, data) {
			return fmt.Errorf("re-encoded %d bytes differ from the %d input bytes", len(out), len(data))
		}
		fmt.Fprintln(stdout, "re-encoding matches input")
	}
	return nil
}

func readInput(path string, isHex bool) ([]byte, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if !isHex {
		return data, nil
	}
	return hex.DecodeString(strings.TrimSpace(string(data)))
}

type printer struct {
	w    io.Writer
	seen map[*fory.UnknownStruct]bool
}

func (p *printer) print(v any, depth int) {
	indent := strings.Repeat("  ", depth)
	switch v := v.(type) {
	case *fory.UnknownStruct:
		if p.seen[v] {
			fmt.Fprintf(p.w, "<cycle %s>", v.TypeDef().TypeName())
			return
		}
		p.seen[v] = true
		defer delete(p.seen, v)
		fmt.Fprintf(p.w, "%s {\n", label(v.TypeDef()))
		for _, field := range v.Fields() {
			fmt.Fprintf(p.w, "%s  %s: ", indent, field.Name)
			p.print(field.Value, depth+1)
			fmt.Fprintln(p.w)
		}
		fmt.Fprintf(p.w, "%s}", indent)
	case []any:
		fmt.Fprint(p.w, "[")
		for i, e := range v {
			if i > 0 {
				fmt.Fprint(p.w, ", ")
			}
			p.print(e, depth)
		}
		fmt.Fprint(p.w, "]")
	case map[any]any:
		keys := make([]string, 0, len(v))
		byKey := make(map[string]any, len(v))
		for k, e := range v {
			s := fmt.Sprint(k)
			keys = append(keys, s)
			byKey[s] = e
		}
		sort.Strings(keys)
		fmt.Fprint(p.w, "{")
		for i, k := range keys {
			if i > 0 {
				fmt.Fprint(p.w, ", ")
			}
			fmt.Fprintf(p.w, "%s: ", k)
			p.print(byKey[k], depth)
		}
		fmt.Fprint(p.w, "}")
	case string:
		fmt.Fprintf(p.w, "%q", v)
	default:
		fmt.Fprintf(p.w, "%v", v)
	}
}

func label(def *fory.TypeDef) string {
	if def.RegisterByName() {
		if def.Namespace() == "" {
			return def.TypeName()
		}
		return def.Namespace() + "." + def.TypeName()
	}
	return fmt.Sprintf("#%d", def.TypeId()>>8)
}
