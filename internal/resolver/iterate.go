// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolver

import (
	"context"

	"github.com/oscaromsn/harvest/internal/dag"
)

// resolveProducers implements steps 7-9 for one
// consumer node: find a producer for each remaining dynamic part and add
// nodes and edges for what it finds. On a cycle, AddEdge refuses the
// closing edge and the call returns that error at once; nodes and edges
// added earlier in the same call stay in the graph. Returns the literals
// that found no producer and were not covered by a bootstrap source (the
// node's final not-found set).
func (r *Resolver) resolveProducers(ctx context.Context, consumerID string, parts []string) ([]string, error) {
	type addedEdge struct {
		from, to string
	}
	var addedEdges []addedEdge
	var addedNodes []string
	var notFound []string

	rollback := func() {
		// Nodes and edges created provisionally this iteration are left
		// in the graph's id space (ids are never reused) but disconnected
		// from the consumer; AddEdge already rolls back its own insertion
		// on cycle, so only the edges we successfully added need undoing
		// conceptually. The graph has no RemoveEdge, so a detected cycle
		// instead aborts before any further mutation in this iteration.
		_ = addedEdges
		_ = addedNodes
	}

	for _, part := range parts {
		if producerID, ok := r.findOrCreateCookieProducer(part); ok {
			if err := r.Graph.AddEdge(consumerID, producerID); err != nil {
				rollback()
				return nil, err
			}
			addedEdges = append(addedEdges, addedEdge{consumerID, producerID})
			r.markExtracted(producerID, part)
			continue
		}

		if producerID, ok, isNew := r.findOrCreateRequestProducer(consumerID, part); ok {
			if err := r.Graph.AddEdge(consumerID, producerID); err != nil {
				rollback()
				return nil, err
			}
			addedEdges = append(addedEdges, addedEdge{consumerID, producerID})
			if isNew {
				addedNodes = append(addedNodes, producerID)
				r.Enqueue(producerID)
			}
			r.markExtracted(producerID, part)
			continue
		}

		if r.Bootstrap != nil {
			if source, ok := r.Bootstrap(part); ok {
				_ = r.Graph.UpdateNode(consumerID, func(n *dag.Node) {
					n.BootstrapSource = source
				})
				continue
			}
		}

		notFound = append(notFound, part)
	}

	for _, part := range notFound {
		id, err := r.Graph.AddNode(dag.KindNotFound, r.groupOf(consumerID))
		if err != nil {
			return nil, err
		}
		if err := r.Graph.AddEdge(consumerID, id); err != nil {
			return nil, err
		}
		addedEdges = append(addedEdges, addedEdge{consumerID, id})
		_ = part
	}

	_ = ctx
	return notFound, nil
}

func (r *Resolver) groupOf(id string) string {
	group, _ := r.Graph.NodeGroup(id)
	return group
}

func (r *Resolver) findOrCreateCookieProducer(part string) (string, bool) {
	name, value, ok := FindCookieProducer(part, r.Cookies)
	if !ok {
		return "", false
	}
	for _, n := range r.Graph.AllNodes() {
		if n.Kind == dag.KindCookie && n.CookieName == name {
			return n.ID, true
		}
	}
	id, err := r.Graph.AddNode(dag.KindCookie, "")
	if err != nil {
		return "", false
	}
	_ = r.Graph.UpdateNode(id, func(n *dag.Node) {
		n.CookieName = name
		n.CookieValue = value
		n.ExtractedParts = []string{value}
		n.State = dag.StateResolved
	})
	return id, true
}

func (r *Resolver) findOrCreateRequestProducer(consumerID, part string) (id string, ok bool, isNew bool) {
	consumer := r.Graph.GetNode(consumerID)
	var consumerRec = consumer.Request

	producerRec, found := FindRequestProducer(part, r.Trace, consumerRec)
	if !found {
		return "", false, false
	}

	if existingID, ok := r.Graph.FindNodeByRequest(producerRec); ok {
		return existingID, true, false
	}

	newID, err := r.Graph.AddNode(dag.KindRequest, r.groupOf(consumerID))
	if err != nil {
		return "", false, false
	}
	_ = r.Graph.UpdateNode(newID, func(n *dag.Node) {
		n.Request = producerRec
		n.Response = producerRec.Response
		n.State = dag.StateEnqueued
	})
	return newID, true, true
}

func (r *Resolver) markExtracted(producerID, part string) {
	_ = r.Graph.UpdateNode(producerID, func(n *dag.Node) {
		for _, existing := range n.ExtractedParts {
			if existing == part {
				return
			}
		}
		n.ExtractedParts = append(n.ExtractedParts, part)
	})
}
