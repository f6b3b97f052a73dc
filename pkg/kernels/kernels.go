// Copyright 2025 CorpusForge
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kernels extracts kernel definitions from normalized corpus
// sources using Tree-sitter. OpenCL address-space and kernel
// qualifiers are blanked to equal-length spaces before parsing, which
// keeps byte offsets stable while letting the C grammar accept the
// source.
package kernels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// Kernel describes one kernel function found in a source sample.
type Kernel struct {
	Name      string `json:"name"`
	Prototype string `json:"prototype"`
	NumArgs   int    `json:"num_args"`
}

// qualifiers not present in plain C; blanked before parsing. Longer
// spellings first so the underscore-prefixed forms are consumed whole.
var openclQualifiers = []string{
	"__kernel", "__global", "__local", "__constant", "__private",
	"kernel ", "global ", "local ", "constant ", "private ",
}

// Extractor parses sources and pulls out kernel definitions. Not safe
// for concurrent use; each goroutine needs its own Extractor.
type Extractor struct {
	parser *sitter.Parser
	logger *slog.Logger
}

// NewExtractor creates an Extractor backed by the Tree-sitter C
// grammar.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())
	return &Extractor{parser: parser, logger: logger}
}

// Extract returns every kernel function defined in src. Syntax errors
// do not abort extraction; Tree-sitter is error-tolerant and whatever
// definitions parse cleanly are still returned.
func (e *Extractor) Extract(ctx context.Context, src string) ([]Kernel, error) {
	blanked := blankQualifiers(src)

	tree, err := e.parser.ParseCtx(ctx, nil, blanked)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		e.logger.Debug("kernels.syntax_errors")
	}

	var found []Kernel
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		if node.Type() != "function_definition" {
			continue
		}
		k, ok := e.kernelFromDefinition(node, src)
		if ok {
			found = append(found, k)
		}
	}
	return found, nil
}

// kernelFromDefinition converts a function_definition node into a
// Kernel, reporting ok=false for plain helper functions.
func (e *Extractor) kernelFromDefinition(node *sitter.Node, src string) (Kernel, bool) {
	declarator := node.ChildByFieldName("declarator")
	for declarator != nil && declarator.Type() != "function_declarator" {
		declarator = declarator.ChildByFieldName("declarator")
	}
	if declarator == nil {
		return Kernel{}, false
	}

	nameNode := declarator.ChildByFieldName("declarator")
	if nameNode == nil {
		return Kernel{}, false
	}

	// The qualifier was blanked for the parser, so look for it in the
	// original text between the start of the definition and its name.
	lead := src[node.StartByte():declarator.StartByte()]
	if !hasKernelQualifier(lead) {
		return Kernel{}, false
	}

	body := node.ChildByFieldName("body")
	protoEnd := node.EndByte()
	if body != nil {
		protoEnd = body.StartByte()
	}

	return Kernel{
		Name:      src[nameNode.StartByte():nameNode.EndByte()],
		Prototype: strings.TrimSpace(src[node.StartByte():protoEnd]),
		NumArgs:   countParameters(declarator, src),
	}, true
}

// hasKernelQualifier reports whether text carries the kernel qualifier
// as a standalone token. Identifiers that merely embed the word, such
// as a kernel_t return type, do not count.
func hasKernelQualifier(text string) bool {
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if tok == "kernel" || tok == "__kernel" {
			return true
		}
	}
	return false
}

// countParameters counts declared parameters, treating a bare (void)
// list as zero.
func countParameters(declarator *sitter.Node, src string) int {
	params := declarator.ChildByFieldName("parameters")
	if params == nil {
		return 0
	}

	n := 0
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p.Type() != "parameter_declaration" {
			continue
		}
		if strings.TrimSpace(src[p.StartByte():p.EndByte()]) == "void" {
			continue
		}
		n++
	}
	return n
}

// blankQualifiers replaces OpenCL qualifiers with equal-length runs of
// spaces so node byte offsets index the original source unchanged.
func blankQualifiers(src string) []byte {
	out := []byte(src)
	for _, q := range openclQualifiers {
		blank := []byte(strings.Repeat(" ", len(q)))
		for idx := strings.Index(string(out), q); idx >= 0; idx = strings.Index(string(out), q) {
			copy(out[idx:idx+len(q)], blank)
		}
	}
	return out
}
