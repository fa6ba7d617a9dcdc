// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llmclient

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oscaromsn/harvest/internal/errs"
)

func TestNew_NoProviderConfiguredWhenUnset(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, errs.CodeNoProviderConfigured, e.Code)
}

func TestNew_NoProviderConfiguredWhenAPIKeyMissing(t *testing.T) {
	_, err := New(Config{Provider: "anthropic"}, nil)
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, errs.CodeNoProviderConfigured, e.Code)
}

func TestNew_RejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "watsonx", APIKey: "k"}, nil)
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, errs.CodeNoProviderConfigured, e.Code)
}
