// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddNode_MasterRequestUniquePerGroup(t *testing.T) {
	g := New()
	_, err := g.AddNode(KindMasterRequest, "checkout")
	require.NoError(t, err)

	_, err = g.AddNode(KindMasterRequest, "checkout")
	require.Error(t, err)
}

func TestAddEdge_RejectsCycle(t *testing.T) {
	g := New()
	a, err := g.AddNode(KindRequest, "g")
	require.NoError(t, err)
	b, err := g.AddNode(KindRequest, "g")
	require.NoError(t, err)

	require.NoError(t, g.AddEdge(a, b))
	err = g.AddEdge(b, a)
	require.Error(t, err)

	// the rejected edge must not have been applied
	require.Empty(t, g.Successors(b))
}

func TestTopologicalSort_ProducersBeforeConsumers(t *testing.T) {
	g := New()
	consumer, err := g.AddNode(KindRequest, "g")
	require.NoError(t, err)
	producer, err := g.AddNode(KindCookie, "g")
	require.NoError(t, err)
	require.NoError(t, g.AddEdge(consumer, producer))

	order, err := g.TopologicalSort()
	require.NoError(t, err)

	producerIdx, consumerIdx := -1, -1
	for i, id := range order {
		if id == producer {
			producerIdx = i
		}
		if id == consumer {
			consumerIdx = i
		}
	}
	require.Less(t, producerIdx, consumerIdx)
}

func TestIsComplete(t *testing.T) {
	g := New()
	id, err := g.AddNode(KindRequest, "g")
	require.NoError(t, err)
	require.True(t, g.IsComplete())

	require.NoError(t, g.UpdateNode(id, func(n *Node) {
		n.DynamicParts = []string{"session_id"}
	}))
	require.False(t, g.IsComplete())

	require.NotEmpty(t, g.UnresolvedNodes())
}

func TestReclassify_KeyedByNameAndValue(t *testing.T) {
	n := &Node{}
	n.Reclassify(ClassifiedParameter{Name: "token", Value: "abc", Classification: ClassOptional})
	n.Reclassify(ClassifiedParameter{Name: "token", Value: "abc", Classification: ClassDynamic})
	n.Reclassify(ClassifiedParameter{Name: "token", Value: "xyz", Classification: ClassOptional})

	require.Len(t, n.ClassifiedParameters, 2)
	require.Equal(t, ClassDynamic, n.ClassifiedParameters[0].Classification)
}
