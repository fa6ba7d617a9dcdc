// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package archive

import "strings"

func isJSONLikeMime(mime string) bool {
	m := strings.ToLower(mime)
	return strings.Contains(m, "json") || strings.Contains(m, "+json")
}

var staticAssetExtensions = []string{
	".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".ico", ".svg",
	".woff", ".woff2", ".ttf", ".eot", ".map",
}

func hasStaticAssetExtension(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range staticAssetExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func classifyResponseType(mime string) string {
	return ClassifyResponseType(mime)
}

// ClassifyResponseType buckets a MIME type into "json", "html", "text",
// "unknown", or "binary". Exported for the Dependency Resolver's guard
// step (step 2), which needs the same classification
// the parser uses when building URLDescriptor.ResponseContentType.
func ClassifyResponseType(mime string) string {
	m := strings.ToLower(mime)
	switch {
	case isJSONLikeMime(m):
		return "json"
	case strings.Contains(m, "html"):
		return "html"
	case strings.Contains(m, "text"):
		return "text"
	case m == "":
		return "unknown"
	default:
		return "binary"
	}
}
