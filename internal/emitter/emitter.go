// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package emitter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/oscaromsn/harvest/internal/dag"
)

// scriptData is the top-level value handed to scriptTemplate.
type scriptData struct {
	Types       []typeDecl
	Functions   []emittedFunction
	EntryName   string
	EntryParams []param
	EntryCalls  []string
	ReturnExpr  string
}

// Emit implements : given a completed session's graph
// and the target workflow group, render the deterministic TypeScript
// client. It refuses with a Diagnosis, not an error, when the session
// is not yet analysis-complete — a two-tier "handle it or hand back
// why not" shape.
func Emit(in Input, g *dag.Graph, groupID string) (string, *Diagnosis, error) {
	if !in.Completion.IsComplete {
		return "", &Diagnosis{
			Blockers:        in.Completion.Blockers,
			Recommendations: in.Completion.Recommendations,
		}, nil
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return "", nil, err
	}

	e := newEmission()

	var data scriptData
	resultVar := make(map[string]string)
	entryParamTypes := make(map[string]string)
	callIndex := 0

	for _, id := range order {
		node := g.GetNode(id)
		if node == nil || node.GroupID != groupID {
			continue
		}
		if node.Kind != dag.KindRequest && node.Kind != dag.KindMasterRequest {
			continue
		}
		if node.Request == nil {
			continue
		}

		fn, types, args := e.emitNode(node, g, resultVar, entryParamTypes)
		data.Functions = append(data.Functions, fn)
		data.Types = append(data.Types, types...)

		callIndex++
		rv := fmt.Sprintf("result%d", callIndex)
		resultVar[id] = rv
		data.EntryCalls = append(data.EntryCalls, fmt.Sprintf("const %s = await %s(%s);", rv, fn.Name, strings.Join(args, ", ")))
	}

	data.EntryName = "runWorkflow"
	data.EntryParams = []param{
		{Name: "cookies", Type: "Record<string, string>"},
		{Name: "initialPageHtml", Type: "string"},
	}
	names := make([]string, 0, len(entryParamTypes))
	for name := range entryParamTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data.EntryParams = append(data.EntryParams, param{Name: e.globalIdent(name), Type: entryParamTypes[name]})
	}

	if callIndex > 0 {
		data.ReturnExpr = fmt.Sprintf("result%d.body", callIndex)
	} else {
		data.ReturnExpr = "null"
	}

	var buf bytes.Buffer
	if err := mustParseScriptTemplate().Execute(&buf, data); err != nil {
		return "", nil, err
	}
	return buf.String(), nil, nil
}

// emission carries the naming state (dedup tables) threaded through one
// Emit call, so two nodes that would otherwise produce the same
// function, type, or variable name get distinct, stable suffixes.
type emission struct {
	funcNames map[string]bool
	typeNames map[string]bool
	globals   map[string]string
	globalIDs map[string]bool
}

func newEmission() *emission {
	return &emission{
		funcNames: map[string]bool{},
		typeNames: map[string]bool{},
		globals:   map[string]string{},
		globalIDs: map[string]bool{},
	}
}

func (e *emission) emitNode(node *dag.Node, g *dag.Graph, resultVar map[string]string, entryParamTypes map[string]string) (emittedFunction, []typeDecl, []string) {
	rec := node.Request
	fnName := e.funcName(node)

	used := map[string]bool{}
	subs := map[string]string{}
	var params []param
	var args []string

	for _, cp := range node.ClassifiedParameters {
		switch cp.Classification {
		case dag.ClassDynamic, dag.ClassUserInput, dag.ClassOptional:
		default:
			continue // static/session constants stay baked into the literal below
		}

		localName := localIdent(used, cp.Name)
		params = append(params, param{Name: localName, Type: "string"})
		subs[cp.Value] = localName

		switch cp.Classification {
		case dag.ClassUserInput, dag.ClassOptional:
			entryParamTypes[cp.Name] = "string"
			args = append(args, e.globalIdent(cp.Name))
		default: // dynamic
			expr := e.resolveDynamicExpr(node, g, cp, resultVar)
			if expr == e.globalIdent(cp.Name) {
				entryParamTypes[cp.Name] = "string"
			}
			args = append(args, expr)
		}
	}

	urlExpr := interpolate(rec.URL, subs)
	var bodyExpr string
	switch {
	case rec.Body != nil && rec.Body.Structured != nil:
		bodyExpr = jsObjectLiteral(rec.Body.Structured, subs)
	case rec.Body != nil && rec.Body.Text != "":
		bodyExpr = interpolate(rec.Body.Text, subs)
	}

	returnType := "unknown"
	var types []typeDecl
	if rec.Response != nil && rec.Response.Body != nil {
		if m, ok := rec.Response.Body.Structured.(map[string]any); ok {
			tn := e.typeName(fnName + "Response")
			types = append(types, typeDecl{Name: tn, Fields: fieldsOf(m)})
			returnType = tn
		}
	}

	fn := emittedFunction{
		Name:          fnName,
		Params:        params,
		Method:        strings.ToUpper(rec.Method),
		URLExpr:       urlExpr,
		BodyExpr:      bodyExpr,
		ReturnTypeRef: returnType,
		CaptureLines: []string{
			"const raw = await response.text();",
			fmt.Sprintf("const body = raw ? (JSON.parse(raw) as %s) : (undefined as unknown as %s);", returnType, returnType),
		},
	}
	return fn, types, args
}

// resolveDynamicExpr finds the call-site expression a consumer node's
// dynamic parameter should be bound to: a cookie lookup, a producer
// node's captured response value, a bootstrap-resolved expression, or,
// failing all three, a plain entry-level input as a last resort so the
// script still renders.
func (e *emission) resolveDynamicExpr(node *dag.Node, g *dag.Graph, cp dag.ClassifiedParameter, resultVar map[string]string) string {
	for _, pid := range g.Successors(node.ID) {
		p := g.GetNode(pid)
		if p == nil {
			continue
		}
		if p.Kind == dag.KindCookie {
			if p.CookieValue == cp.Value || containsString(p.ExtractedParts, cp.Value) {
				return fmt.Sprintf("cookies[%s]", jsonStr(p.CookieName))
			}
			continue
		}
		if containsString(p.ExtractedParts, cp.Value) {
			if rv, ok := resultVar[pid]; ok {
				return e.captureExpr(p, rv, cp.Value)
			}
		}
	}
	if node.BootstrapSource != nil {
		return bootstrapExpr(node.BootstrapSource)
	}
	return e.globalIdent(cp.Name)
}

func (e *emission) captureExpr(producer *dag.Node, resultVar, value string) string {
	if producer.Request != nil && producer.Request.Response != nil && producer.Request.Response.Body != nil {
		body := producer.Request.Response.Body
		if body.IsJSONLike() {
			if path, ok := jsonPathFor(body.Structured, value); ok {
				return resultVar + ".body" + path
			}
		}
	}
	return fmt.Sprintf("extractPattern(%s.raw, %s)", resultVar, jsonStr(valueToRegexBody(value)))
}

func bootstrapExpr(bs *dag.BootstrapSource) string {
	switch bs.Type {
	case dag.BootstrapInitialPageHTML:
		return fmt.Sprintf("extractPattern(initialPageHtml, %s)", jsonStr(bs.Pattern))
	case dag.BootstrapInitialPageCookie:
		return fmt.Sprintf("cookies[%s]", jsonStr(bs.CookieName))
	case dag.BootstrapDedicatedAuth:
		if bs.JSONPath != "" {
			return fmt.Sprintf("extractJSONPath(await (await fetch(%s)).json(), %s)", jsonStr(bs.URL), jsonStr(bs.JSONPath))
		}
		return fmt.Sprintf("await (await fetch(%s)).text()", jsonStr(bs.URL))
	default:
		return `""`
	}
}

// --- naming ---

func (e *emission) funcName(node *dag.Node) string {
	path := "root"
	if u, err := url.Parse(node.Request.URL); err == nil && u.Path != "" && u.Path != "/" {
		path = strings.Trim(u.Path, "/")
	}
	base := lowerFirst(sanitizeIdentBase(strings.ToLower(node.Request.Method) + " " + path))
	return dedupe(e.funcNames, base)
}

func (e *emission) typeName(base string) string {
	name := upperFirst(sanitizeIdentBase(base))
	return dedupe(e.typeNames, name)
}

// globalIdent returns the stable, deduplicated entry-level identifier
// for a classified-parameter name, memoized so every node that shares
// the same logical input variable references the same identifier.
func (e *emission) globalIdent(raw string) string {
	if id, ok := e.globals[raw]; ok {
		return id
	}
	id := dedupe(e.globalIDs, lowerFirst(sanitizeIdentBase(raw)))
	e.globals[raw] = id
	return id
}

func localIdent(used map[string]bool, raw string) string {
	return dedupe(used, lowerFirst(sanitizeIdentBase(raw)))
}

func dedupe(used map[string]bool, base string) string {
	if base == "" {
		base = "value"
	}
	if !used[base] {
		used[base] = true
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s%d", base, i)
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}

func sanitizeIdentBase(s string) string {
	var b strings.Builder
	capNext := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if capNext {
				b.WriteRune(unicode.ToUpper(r))
				capNext = false
			} else {
				b.WriteRune(r)
			}
		default:
			capNext = true
		}
	}
	out := b.String()
	if out == "" {
		return "value"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "v" + out
	}
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func containsString(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}

// --- TypeScript value rendering ---

func interpolate(raw string, subs map[string]string) string {
	if len(subs) == 0 {
		return "`" + escapeTemplateLiteral(raw) + "`"
	}

	type hit struct {
		start, end int
		expr       string
	}
	var hits []hit
	for value, ident := range subs {
		if value == "" {
			continue
		}
		start := 0
		for {
			i := strings.Index(raw[start:], value)
			if i < 0 {
				break
			}
			hits = append(hits, hit{start + i, start + i + len(value), ident})
			start += i + len(value)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	var b strings.Builder
	pos := 0
	for _, h := range hits {
		if h.start < pos {
			continue // overlapping match against an earlier, longer substitution
		}
		b.WriteString(escapeTemplateLiteral(raw[pos:h.start]))
		b.WriteString("${" + h.expr + "}")
		pos = h.end
	}
	b.WriteString(escapeTemplateLiteral(raw[pos:]))
	return "`" + b.String() + "`"
}

func escapeTemplateLiteral(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "`", "\\`", "${", "\\${")
	return r.Replace(s)
}

func jsObjectLiteral(v any, subs map[string]string) string {
	switch t := v.(type) {
	case string:
		if ident, ok := subs[t]; ok {
			return ident
		}
		return jsonStr(t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", jsonStr(k), jsObjectLiteral(t[k], subs)))
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case []any:
		parts := make([]string, 0, len(t))
		for _, elem := range t {
			parts = append(parts, jsObjectLiteral(elem, subs))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case nil:
		return "null"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "null"
		}
		return string(b)
	}
}

func fieldsOf(m map[string]any) []field {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]field, 0, len(keys))
	for _, k := range keys {
		out = append(out, field{Name: jsPropertyName(k), Type: tsInlineType(m[k])})
	}
	return out
}

func jsPropertyName(k string) string {
	if isValidJSIdent(k) {
		return k
	}
	return jsonStr(k)
}

func tsInlineType(v any) string {
	switch t := v.(type) {
	case nil:
		return "unknown"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		if len(t) == 0 {
			return "unknown[]"
		}
		return tsInlineType(t[0]) + "[]"
	case map[string]any:
		fs := fieldsOf(t)
		parts := make([]string, 0, len(fs))
		for _, f := range fs {
			parts = append(parts, fmt.Sprintf("%s: %s", f.Name, f.Type))
		}
		return "{ " + strings.Join(parts, "; ") + " }"
	default:
		return "unknown"
	}
}

func isValidJSIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !(unicode.IsLetter(r) || r == '_' || r == '$') {
				return false
			}
		} else if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$') {
			return false
		}
	}
	return true
}

// jsonPathFor walks a decoded JSON value for a string leaf equal to
// target, returning a TypeScript property-access suffix (".a.b" or
// `["odd-key"]`) to reach it.
func jsonPathFor(v any, target string) (string, bool) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := t[k]
			if s, ok := child.(string); ok && s == target {
				return propertyAccess(k), true
			}
			if sub, ok := jsonPathFor(child, target); ok {
				return propertyAccess(k) + sub, true
			}
		}
	case []any:
		for i, child := range t {
			if s, ok := child.(string); ok && s == target {
				return fmt.Sprintf("[%d]", i), true
			}
			if sub, ok := jsonPathFor(child, target); ok {
				return fmt.Sprintf("[%d]", i) + sub, true
			}
		}
	}
	return "", false
}

func propertyAccess(key string) string {
	if isValidJSIdent(key) {
		return "." + key
	}
	return "[" + jsonStr(key) + "]"
}

// valueToRegexBody builds a coarse extraction regex from a captured
// value's shape: runs of digits and runs of word characters are
// generalized, everything else is escaped literally. Mirrors
// resolver/classify.go's patternOf idea, but emits a usable regex body
// instead of a diagnostic shape signature.
func valueToRegexBody(value string) string {
	var b strings.Builder
	runes := []rune(value)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && unicode.IsDigit(runes[j]) {
				j++
			}
			b.WriteString(`\d+`)
			i = j
		case unicode.IsLetter(r):
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) {
				j++
			}
			b.WriteString(`[A-Za-z0-9_-]+`)
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
			i++
		}
	}
	return b.String()
}

func jsonStr(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
