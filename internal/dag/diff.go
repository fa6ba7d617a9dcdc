// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// NodeDiff describes how a single node changed between two graph states.
type NodeDiff struct {
	NodeID     string
	ChangeType string // "state_changed" or "parts_changed"; edge changes are counted in Diff.EdgesAdded/EdgesRemoved
}

// DiffSummary holds aggregate statistics about a Diff.
type DiffSummary struct {
	TotalChanges int
	ChangeRatio  float64
}

// Diff describes the differences between two graph states of the same
// session, e.g. before and after a resolver iteration.
type Diff struct {
	BaseLabel   string
	TargetLabel string

	NodesAdded    []string
	NodesRemoved  []string
	NodesModified []NodeDiff

	EdgesAdded   int
	EdgesRemoved int

	Summary DiffSummary
}

// DiffGraphs computes the differences between base and target, labeling
// each side for display (e.g. "before", "after").
func DiffGraphs(base, target *Graph, baseLabel, targetLabel string) (*Diff, error) {
	if base == nil || target == nil {
		return nil, fmt.Errorf("dag: both graphs must be non-nil to diff")
	}

	d := &Diff{BaseLabel: baseLabel, TargetLabel: targetLabel}

	for id, tNode := range target.nodes {
		bNode, exists := base.nodes[id]
		if !exists {
			d.NodesAdded = append(d.NodesAdded, id)
			continue
		}
		if changeType, changed := compareNodes(bNode, tNode); changed {
			d.NodesModified = append(d.NodesModified, NodeDiff{NodeID: id, ChangeType: changeType})
		}
	}
	for id := range base.nodes {
		if _, exists := target.nodes[id]; !exists {
			d.NodesRemoved = append(d.NodesRemoved, id)
		}
	}

	sort.Strings(d.NodesAdded)
	sort.Strings(d.NodesRemoved)
	sort.Slice(d.NodesModified, func(i, j int) bool { return d.NodesModified[i].NodeID < d.NodesModified[j].NodeID })

	d.EdgesAdded, d.EdgesRemoved = edgeDelta(base.edges, target.edges)

	total := len(d.NodesAdded) + len(d.NodesRemoved) + len(d.NodesModified) + d.EdgesAdded + d.EdgesRemoved
	d.Summary = DiffSummary{TotalChanges: total}
	if len(target.nodes) > 0 {
		d.Summary.ChangeRatio = float64(len(d.NodesModified)+len(d.NodesAdded)+len(d.NodesRemoved)) / float64(len(target.nodes))
	}

	return d, nil
}

func compareNodes(a, b *Node) (string, bool) {
	switch {
	case a.State != b.State:
		return "state_changed", true
	case !stringSliceEqual(a.DynamicParts, b.DynamicParts) || !stringSliceEqual(a.ExtractedParts, b.ExtractedParts):
		return "parts_changed", true
	default:
		return "", false
	}
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func edgeDelta(base, target []Edge) (added, removed int) {
	baseSet := make(map[Edge]bool, len(base))
	for _, e := range base {
		baseSet[e] = true
	}
	targetSet := make(map[Edge]bool, len(target))
	for _, e := range target {
		targetSet[e] = true
	}
	for e := range targetSet {
		if !baseSet[e] {
			added++
		}
	}
	for e := range baseSet {
		if !targetSet[e] {
			removed++
		}
	}
	return added, removed
}

// RenderUnified renders a human-readable unified-diff-style text summary
// of the node list, served at the dag.diff resource endpoint. It uses
// go-diff's hunk formatting so the output follows the standard unified
// diff convention even though the underlying content is a node-id list
// rather than file lines.
func RenderUnified(d *Diff) (string, error) {
	var baseLines, targetLines []string
	for _, id := range d.NodesRemoved {
		baseLines = append(baseLines, id)
	}
	for _, id := range d.NodesAdded {
		targetLines = append(targetLines, id)
	}

	fd := &diff.FileDiff{
		OrigName: d.BaseLabel,
		NewName:  d.TargetLabel,
		Hunks: []*diff.Hunk{
			{
				OrigLines: len(baseLines),
				NewLines:  len(targetLines),
				Body:      []byte(hunkBody(baseLines, targetLines)),
			},
		},
	}

	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("dag: rendering unified diff: %w", err)
	}
	return string(out), nil
}

func hunkBody(removed, added []string) string {
	var b strings.Builder
	for _, id := range removed {
		b.WriteString("-" + id + "\n")
	}
	for _, id := range added {
		b.WriteString("+" + id + "\n")
	}
	return b.String()
}
