// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/oscaromsn/harvest/internal/api"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	blockerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("120"))
)

type pollTickMsg time.Time

type statusMsg struct {
	status *api.StatusResponse
	dag    *api.DAGResponse
	err    error
}

// dashboardModel polls a session's status.json and dag.json on an
// interval and renders the node table plus blockers, until the
// session reports complete or the user quits.
type dashboardModel struct {
	sessionID string
	status    *api.StatusResponse
	dag       table.Model
	err       error
	quitting  bool
}

func newDashboardModel(id string) dashboardModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Node", Width: 28},
			{Title: "Kind", Width: 10},
			{Title: "State", Width: 12},
			{Title: "Method", Width: 6},
			{Title: "URL", Width: 40},
		}),
		table.WithHeight(12),
	)
	return dashboardModel{sessionID: id, dag: t}
}

func runDashboard(id string) error {
	p := tea.NewProgram(newDashboardModel(id))
	_, err := p.Run()
	return err
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(pollOnce(m.sessionID), tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return pollTickMsg(t) })
}

func pollOnce(id string) tea.Cmd {
	return func() tea.Msg {
		var status api.StatusResponse
		if err := getJSON("/v1/harvest/sessions/"+id+"/status", &status); err != nil {
			return statusMsg{err: err}
		}
		var dag api.DAGResponse
		if err := getJSON("/v1/harvest/sessions/"+id+"/dag", &dag); err != nil {
			return statusMsg{status: &status, err: err}
		}
		return statusMsg{status: &status, dag: &dag}
	}
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case pollTickMsg:
		if m.status != nil && m.status.IsComplete {
			return m, nil
		}
		return m, tea.Batch(pollOnce(m.sessionID), tick())
	case statusMsg:
		m.err = msg.err
		if msg.status != nil {
			m.status = msg.status
		}
		if msg.dag != nil {
			rows := make([]table.Row, len(msg.dag.Nodes))
			for i, n := range msg.dag.Nodes {
				rows[i] = table.Row{n.ID, n.Kind, n.State, n.Method, n.URL}
			}
			m.dag.SetRows(rows)
		}
	}
	return m, nil
}

func (m dashboardModel) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return blockerStyle.Render(fmt.Sprintf("error: %v\n", m.err))
	}
	if m.status == nil {
		return "loading...\n"
	}

	header := headerStyle.Render(fmt.Sprintf("session %s", m.sessionID))
	summary := fmt.Sprintf("unresolved %d/%d  pending %d\n", m.status.UnresolvedNodes, m.status.TotalNodes, m.status.PendingInQueue)
	if m.status.IsComplete {
		summary += okStyle.Render("complete\n")
	}

	body := header + "\n" + summary + "\n" + m.dag.View() + "\n"
	for _, b := range m.status.Blockers {
		body += blockerStyle.Render("blocker: "+b) + "\n"
	}
	body += "\n(press q to quit)\n"
	return body
}
