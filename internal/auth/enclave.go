// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// SealedToken holds a token value inside a memguard enclave rather than
// as a plain string, so extracted bearer tokens and API keys never sit
// in ordinary heap memory (or a core dump) for longer than the brief
// window an enclave is open. Follows a pluggable-backend secret
// abstraction, swapped from env-var lookups to in-memory sealing.
type SealedToken struct {
	Name    string
	Type    AuthType
	enclave *memguard.Enclave
}

// Vault seals every extracted token from an Analysis and releases
// plaintext copies only for the duration of a caller-supplied callback.
//
// Thread Safety: safe for concurrent use; each Reveal call opens its own
// locked buffer and destroys it before returning.
type Vault struct {
	mu     sync.Mutex
	sealed []SealedToken
}

// NewVault seals every token in tokens into its own enclave.
func NewVault(tokens []Token) *Vault {
	v := &Vault{}
	for _, t := range tokens {
		v.sealed = append(v.sealed, SealedToken{
			Name:    t.Name,
			Type:    t.Type,
			enclave: memguard.NewEnclave([]byte(t.Value)),
		})
	}
	return v
}

// Names lists the sealed token names, without revealing any value.
func (v *Vault) Names() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.sealed))
	for i, s := range v.sealed {
		out[i] = s.Name
	}
	return out
}

// Reveal opens the enclave for the named token, passes the plaintext to
// fn, and destroys the locked buffer before returning regardless of fn's
// outcome.
func (v *Vault) Reveal(name string, fn func(value string) error) error {
	v.mu.Lock()
	var target *SealedToken
	for i := range v.sealed {
		if v.sealed[i].Name == name {
			target = &v.sealed[i]
			break
		}
	}
	v.mu.Unlock()

	if target == nil {
		return fmt.Errorf("auth: no sealed token named %q", name)
	}

	buf, err := target.enclave.Open()
	if err != nil {
		return fmt.Errorf("auth: opening enclave for %q: %w", name, err)
	}
	defer buf.Destroy()

	return fn(string(buf.Bytes()))
}
