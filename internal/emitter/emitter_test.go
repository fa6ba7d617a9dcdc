// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package emitter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oscaromsn/harvest/internal/archive"
	"github.com/oscaromsn/harvest/internal/dag"
)

func TestEmit_RefusesWhenIncomplete(t *testing.T) {
	g := dag.New()
	in := Input{Completion: Completion{
		IsComplete:      false,
		Blockers:        []string{"node abc123 still has unresolved dynamic parts"},
		Recommendations: []string{"run another resolver step"},
	}}

	script, diag, err := Emit(in, g, "group-1")
	require.NoError(t, err)
	require.Empty(t, script)
	require.NotNil(t, diag)
	require.Equal(t, in.Completion.Blockers, diag.Blockers)
	require.Equal(t, in.Completion.Recommendations, diag.Recommendations)
}

func TestEmit_SingleNodeNoParams(t *testing.T) {
	g := dag.New()
	id, err := g.AddNode(dag.KindMasterRequest, "group-1")
	require.NoError(t, err)
	require.NoError(t, g.UpdateNode(id, func(n *dag.Node) {
		n.Request = &archive.Record{
			Method: "GET",
			URL:    "https://api.example.com/widgets",
			Response: &archive.Response{
				Body: &archive.Body{
					MimeType:   "application/json",
					Structured: map[string]any{"count": float64(3)},
				},
			},
		}
	}))

	script, diag, err := Emit(Input{Completion: Completion{IsComplete: true}}, g, "group-1")
	require.NoError(t, err)
	require.Nil(t, diag)
	require.Contains(t, script, "async function")
	require.Contains(t, script, "https://api.example.com/widgets")
	require.Contains(t, script, "export async function runWorkflow")
	require.Contains(t, script, "count: number")
}

func TestEmit_ProducerConsumerBindsJSONPath(t *testing.T) {
	g := dag.New()

	loginID, err := g.AddNode(dag.KindRequest, "group-1")
	require.NoError(t, err)
	require.NoError(t, g.UpdateNode(loginID, func(n *dag.Node) {
		n.Request = &archive.Record{
			Method: "POST",
			URL:    "https://api.example.com/login",
			Response: &archive.Response{
				Body: &archive.Body{
					MimeType:   "application/json",
					Text:       `{"token":"tok-xyz123456"}`,
					Structured: map[string]any{"token": "tok-xyz123456"},
				},
			},
		}
		n.ExtractedParts = []string{"tok-xyz123456"}
		n.State = dag.StateResolved
	}))

	consumerID, err := g.AddNode(dag.KindMasterRequest, "group-1")
	require.NoError(t, err)
	require.NoError(t, g.UpdateNode(consumerID, func(n *dag.Node) {
		n.Request = &archive.Record{
			Method: "GET",
			URL:    "https://api.example.com/profile?token=tok-xyz123456",
		}
		n.ClassifiedParameters = []dag.ClassifiedParameter{
			{Name: "token", Value: "tok-xyz123456", Classification: dag.ClassDynamic},
		}
	}))
	require.NoError(t, g.AddEdge(consumerID, loginID))

	script, diag, err := Emit(Input{Completion: Completion{IsComplete: true}}, g, "group-1")
	require.NoError(t, err)
	require.Nil(t, diag)
	require.Contains(t, script, "result1.body.token")
}

func TestEmit_UserInputBecomesEntryParam(t *testing.T) {
	g := dag.New()
	id, err := g.AddNode(dag.KindMasterRequest, "group-1")
	require.NoError(t, err)
	require.NoError(t, g.UpdateNode(id, func(n *dag.Node) {
		n.Request = &archive.Record{
			Method: "POST",
			URL:    "https://api.example.com/redeem",
			Body:   &archive.Body{MimeType: "application/json", Structured: map[string]any{"code": "GIFT50"}},
		}
		n.ClassifiedParameters = []dag.ClassifiedParameter{
			{Name: "code", Value: "GIFT50", Classification: dag.ClassUserInput},
		}
	}))

	script, diag, err := Emit(Input{Completion: Completion{IsComplete: true}}, g, "group-1")
	require.NoError(t, err)
	require.Nil(t, diag)
	require.Contains(t, script, "code: string")
}

func TestEmit_BootstrapSourceRendersExtraction(t *testing.T) {
	g := dag.New()
	id, err := g.AddNode(dag.KindMasterRequest, "group-1")
	require.NoError(t, err)
	require.NoError(t, g.UpdateNode(id, func(n *dag.Node) {
		n.Request = &archive.Record{
			Method: "GET",
			URL:    "https://api.example.com/csrf-protected?csrf=tok-abc987",
		}
		n.ClassifiedParameters = []dag.ClassifiedParameter{
			{Name: "csrf", Value: "tok-abc987", Classification: dag.ClassDynamic},
		}
		n.BootstrapSource = &dag.BootstrapSource{
			Type:    dag.BootstrapInitialPageHTML,
			URL:     "https://app.example.com/",
			Pattern: `name="csrf" content="(.+?)"`,
		}
	}))

	script, diag, err := Emit(Input{Completion: Completion{IsComplete: true}}, g, "group-1")
	require.NoError(t, err)
	require.Nil(t, diag)
	require.Contains(t, script, "extractPattern(initialPageHtml,")
}
