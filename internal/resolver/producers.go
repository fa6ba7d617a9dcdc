// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolver

import (
	"strings"

	"github.com/oscaromsn/harvest/internal/archive"
)

// FindCookieProducer implements step 7(a): any
// cookie whose value contains part yields a cookie-dependency.
func FindCookieProducer(part string, cookies archive.CookieSnapshot) (name string, value string, ok bool) {
	for name, cookie := range cookies {
		if cookie.Value != "" && strings.Contains(cookie.Value, part) {
			return name, cookie.Value, true
		}
	}
	return "", "", false
}

// FindRequestProducer implements step 7(b): any earlier request whose
// response body contains part, preferring the earliest by timestamp,
// ties broken by response-body smallness.
func FindRequestProducer(part string, trace *archive.Trace, consumer *archive.Record) (*archive.Record, bool) {
	var best *archive.Record
	for _, rec := range trace.Records {
		if rec == consumer {
			continue
		}
		if consumer != nil && rec.CapturedAt.After(consumer.CapturedAt) {
			continue
		}
		if rec.Response == nil || rec.Response.Body == nil {
			continue
		}
		if !strings.Contains(rec.Response.Body.Text, part) {
			continue
		}
		if best == nil {
			best = rec
			continue
		}
		if rec.CapturedAt.Before(best.CapturedAt) {
			best = rec
			continue
		}
		if rec.CapturedAt.Equal(best.CapturedAt) && len(rec.Response.Body.Text) < len(best.Response.Body.Text) {
			best = rec
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}
