// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package archive

import "encoding/json"

// Cookie is a single entry of a CookieSnapshot
type Cookie struct {
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// CookieSnapshot maps cookie name to value and attributes. Keys are
// unique per snapshot.
type CookieSnapshot map[string]Cookie

// rawCookieValue accepts either a bare JSON string or a
// {value, domain?, path?, secure?, httpOnly?} object. Unknown fields
// are ignored.
type rawCookieValue struct {
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httpOnly"`
}

// ParseCookieSnapshot decodes a cookie snapshot JSON document.
func ParseCookieSnapshot(buf []byte) (CookieSnapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, err
	}

	out := make(CookieSnapshot, len(raw))
	for name, msg := range raw {
		var bare string
		if err := json.Unmarshal(msg, &bare); err == nil {
			out[name] = Cookie{Value: bare}
			continue
		}

		var obj rawCookieValue
		if err := json.Unmarshal(msg, &obj); err != nil {
			return nil, err
		}
		out[name] = Cookie{
			Value:    obj.Value,
			Domain:   obj.Domain,
			Path:     obj.Path,
			Secure:   obj.Secure,
			HTTPOnly: obj.HTTPOnly,
		}
	}
	return out, nil
}
