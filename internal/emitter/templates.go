// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package emitter

import "text/template"

// scriptTemplate renders the emitted TypeScript client, following a
// const-template-plus-text/template idiom.
const scriptTemplate = `// Code generated by harvest. DO NOT EDIT.

interface Envelope<T> {
  body: T;
  raw: string;
}

function extractPattern(text: string, pattern: string): string {
  const match = text.match(new RegExp(pattern));
  if (!match) {
    throw new Error(` + "`pattern not found: ${pattern}`" + `);
  }
  return match[1] ?? match[0];
}

function extractJSONPath(value: unknown, path: string): string {
  return path.split(".").reduce((acc: any, key) => acc?.[key], value);
}

{{range .Types -}}
interface {{.Name}} {
{{range .Fields}}  {{.Name}}: {{.Type}};
{{end -}}
}

{{end -}}
{{range .Functions -}}
async function {{.Name}}({{paramList .Params}}): Promise<Envelope<{{.ReturnTypeRef}}>> {
  const response = await fetch({{.URLExpr}}, {
    method: "{{.Method}}",
{{- if .BodyExpr}}
    headers: { "content-type": "application/json" },
    body: JSON.stringify({{.BodyExpr}}),
{{- end}}
  });
{{range .CaptureLines}}  {{.}}
{{end -}}
  return { body, raw };
}

{{end -}}
export async function {{.EntryName}}({{paramList .EntryParams}}) {
{{range .EntryCalls}}  {{.}}
{{end -}}
  return {{.ReturnExpr}};
}
`

func mustParseScriptTemplate() *template.Template {
	return template.Must(template.New("script").Funcs(template.FuncMap{
		"paramList": renderParamList,
	}).Parse(scriptTemplate))
}

func renderParamList(params []param) string {
	out := ""
	for i, p := range params {
		if i > 0 {
			out += ", "
		}
		out += p.Name + ": " + p.Type
	}
	return out
}
