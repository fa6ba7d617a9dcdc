// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oscaromsn/harvest/internal/archive"
	"github.com/oscaromsn/harvest/internal/dag"
)

func headersWith(pairs ...archive.Header) *archive.Headers {
	return archive.NewHeaders(pairs)
}

// TestResolver_RequestDependencyChain covers a POST whose URL contains
// a value ("u-420000") produced by an earlier GET's response body.
func TestResolver_RequestDependencyChain(t *testing.T) {
	getUser := &archive.Record{
		Method:     "GET",
		URL:        "https://svc/api/user",
		Headers:    headersWith(),
		CapturedAt: time.Unix(0, 0),
		Response: &archive.Response{
			Status: 200,
			Body:   &archive.Body{MimeType: "application/json", Text: `{"uid":"u-420000"}`},
		},
	}
	// unrelated request sharing the "uid" query key with a different value,
	// so the classifier sees more than one distinct value for that name and
	// does not mistake u-420000 for a static constant.
	unrelated := &archive.Record{
		Method:     "GET",
		URL:        "https://svc/api/other?uid=q-999999",
		Headers:    headersWith(),
		CapturedAt: time.Unix(1, 30),
		Response: &archive.Response{
			Status: 200,
			Body:   &archive.Body{MimeType: "application/json", Text: `{"ok":true}`},
		},
	}
	postOrder := &archive.Record{
		Method:     "POST",
		URL:        "https://svc/api/order?uid=u-420000",
		Headers:    headersWith(),
		CapturedAt: time.Unix(2, 0),
		Response: &archive.Response{
			Status: 200,
			Body:   &archive.Body{MimeType: "application/json", Text: `{"status":"ok"}`},
		},
	}

	trace := &archive.Trace{Records: []*archive.Record{getUser, unrelated, postOrder}}

	g := dag.New()
	masterID, err := g.AddNode(dag.KindMasterRequest, "checkout")
	require.NoError(t, err)
	require.NoError(t, g.UpdateNode(masterID, func(n *dag.Node) {
		n.Request = postOrder
		n.Response = postOrder.Response
	}))

	res := New(g, trace, nil, "sess-s2", nil)
	res.Enqueue(masterID)

	result, err := res.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeResolved, result.Outcome)

	// the GET node should now exist and be enqueued
	require.Equal(t, 2, g.NodeCount())
	require.Len(t, res.Queue, 1)

	result, err = res.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeResolved, result.Outcome)

	result, err = res.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeComplete, result.Outcome)

	require.True(t, g.IsComplete())

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	require.Equal(t, masterID, order[len(order)-1])
}

// TestResolver_CookieDependency covers a request URL that contains a
// value found in a snapshot cookie.
func TestResolver_CookieDependency(t *testing.T) {
	req := &archive.Record{
		Method:     "GET",
		URL:        "https://svc/api/profile?session=abc123",
		Headers:    headersWith(),
		CapturedAt: time.Unix(0, 0),
	}
	trace := &archive.Trace{Records: []*archive.Record{req}}
	cookies := archive.CookieSnapshot{"sid": archive.Cookie{Value: "abc123"}}

	g := dag.New()
	masterID, err := g.AddNode(dag.KindMasterRequest, "profile")
	require.NoError(t, err)
	require.NoError(t, g.UpdateNode(masterID, func(n *dag.Node) {
		n.Request = req
	}))

	res := New(g, trace, cookies, "sess-s4", nil)
	res.Enqueue(masterID)

	_, err = res.Step(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, g.NodeCount())
	var cookieNode *dag.Node
	for _, n := range g.AllNodes() {
		if n.Kind == dag.KindCookie {
			cookieNode = n
		}
	}
	require.NotNil(t, cookieNode)
	require.Equal(t, []string{"abc123"}, cookieNode.ExtractedParts)

	for _, n := range g.AllNodes() {
		require.NotEqual(t, dag.KindNotFound, n.Kind)
	}
}

// fakeCollaborator is a test double for Collaborator, grounded on the
// resolver's own "degrade to heuristic on ok=false" contract.
type fakeCollaborator struct {
	dynamicParts []string
	identified   map[string]string
	removed      []string
}

func (f *fakeCollaborator) IdentifyDynamicParts(ctx context.Context, rec *archive.Record, known map[string]string) ([]string, bool) {
	return f.dynamicParts, true
}

func (f *fakeCollaborator) IdentifyInputVariables(ctx context.Context, rec *archive.Record, userVars map[string]string, dynamicParts []string) (map[string]string, []string, bool) {
	return f.identified, f.removed, true
}

// TestResolver_CollaboratorOverridesHeuristicExtraction verifies that a
// configured Collaborator's answers replace ExtractDynamicParts and the
// exact-match input-variable fold, rather than merely supplementing them.
func TestResolver_CollaboratorOverridesHeuristicExtraction(t *testing.T) {
	req := &archive.Record{
		Method:     "GET",
		URL:        "https://svc/api/widgets",
		Headers:    headersWith(),
		CapturedAt: time.Unix(0, 0),
	}
	trace := &archive.Trace{Records: []*archive.Record{req}}

	g := dag.New()
	masterID, err := g.AddNode(dag.KindMasterRequest, "widgets")
	require.NoError(t, err)
	require.NoError(t, g.UpdateNode(masterID, func(n *dag.Node) {
		n.Request = req
	}))

	res := New(g, trace, nil, "sess-collab", nil)
	res.Collaborator = &fakeCollaborator{
		dynamicParts: []string{"planXYZ123456"},
		identified:   map[string]string{"plan": "planXYZ123456"},
		removed:      []string{"planXYZ123456"},
	}
	res.Enqueue(masterID)

	result, err := res.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeResolved, result.Outcome)

	node := g.GetNode(masterID)
	require.Equal(t, "planXYZ123456", node.InputVariables["plan"])
	require.Empty(t, node.DynamicParts)
}
