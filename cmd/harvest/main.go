// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command harvest is a CLI/TUI client for a running harvestd server: it
// submits recorded network traces for one-shot processing, lists and
// inspects sessions, and can watch a session's progress as it resolves.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/oscaromsn/harvest/internal/api"
)

var (
	serverAddr string
	httpClient = &http.Client{Timeout: 60 * time.Second}
)

func main() {
	root := &cobra.Command{
		Use:   "harvest",
		Short: "Submit and inspect harvest sessions against a running harvestd server",
	}
	root.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8088", "harvestd base URL")

	root.AddCommand(newRunCommand())
	root.AddCommand(newSessionsCommand())
	root.AddCommand(newWatchCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCommand() *cobra.Command {
	var archivePath, cookiesPath, prompt string
	var iterationCap int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit a recorded trace and prompt, driving the Workflow Orchestrator to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt is required")
			}
			archiveBytes, err := os.ReadFile(archivePath)
			if err != nil {
				return fmt.Errorf("reading --archive: %w", err)
			}
			var cookieBytes []byte
			if cookiesPath != "" {
				cookieBytes, err = os.ReadFile(cookiesPath)
				if err != nil {
					return fmt.Errorf("reading --cookies: %w", err)
				}
			}

			req := api.RunRequest{
				Archive:      archiveBytes,
				Cookies:      cookieBytes,
				Prompt:       prompt,
				IterationCap: iterationCap,
			}
			var resp api.RunResponse
			if err := postJSON("/v1/harvest/sessions/run", req, &resp); err != nil {
				return err
			}

			if resp.Complete {
				fmt.Printf("session %s complete after %d iterations\n\n", resp.SessionID, resp.IterationsRun)
				fmt.Println(resp.Script)
				return nil
			}

			fmt.Printf("session %s did not complete (%d iterations, cap hit: %v)\n", resp.SessionID, resp.IterationsRun, resp.IterationCapHit)
			for _, b := range resp.Blockers {
				fmt.Println("  blocker:", b)
			}
			for _, r := range resp.Recommendations {
				fmt.Println("  recommendation:", r)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&archivePath, "archive", "", "path to a HAR file")
	cmd.Flags().StringVar(&cookiesPath, "cookies", "", "path to a cookie snapshot JSON file")
	cmd.Flags().StringVar(&prompt, "prompt", "", "plain-language description of the action to reproduce")
	cmd.Flags().IntVar(&iterationCap, "iteration-cap", 0, "override the server's default resolver iteration cap")
	cmd.MarkFlagRequired("archive")
	cmd.MarkFlagRequired("prompt")
	return cmd
}

func newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Inspect live sessions"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List live session ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Sessions []string `json:"sessions"`
			}
			if err := getJSON("/v1/harvest/sessions", &resp); err != nil {
				return err
			}
			for _, id := range resp.Sessions {
				fmt.Println(id)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status <id>",
		Short: "Print a session's status.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.StatusResponse
			if err := getJSON("/v1/harvest/sessions/"+args[0]+"/status", &resp); err != nil {
				return err
			}
			return printJSON(resp)
		},
	})
	return cmd
}

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Watch a session's status and DAG as it resolves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if isatty.IsTerminal(os.Stdout.Fd()) {
				return runDashboard(args[0])
			}
			return watchPlain(args[0])
		},
	}
	return cmd
}

// watchPlain polls status.json on an interval and prints each change,
// for non-interactive terminals (CI logs, piped output).
func watchPlain(id string) error {
	var prevUnresolved, prevPending = -1, -1
	for {
		var cur api.StatusResponse
		if err := getJSON("/v1/harvest/sessions/"+id+"/status", &cur); err != nil {
			return err
		}
		if cur.UnresolvedNodes != prevUnresolved || cur.PendingInQueue != prevPending {
			fmt.Printf("[%s] complete=%v unresolved=%d/%d pending=%d\n",
				time.Now().Format(time.Kitchen), cur.IsComplete, cur.UnresolvedNodes, cur.TotalNodes, cur.PendingInQueue)
			prevUnresolved, prevPending = cur.UnresolvedNodes, cur.PendingInQueue
		}
		if cur.IsComplete {
			return nil
		}
		time.Sleep(time.Second)
	}
}

func postJSON(path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(serverAddr+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

func getJSON(path string, out any) error {
	resp, err := httpClient.Get(serverAddr + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

func decodeOrError(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		var errResp api.ErrorResponse
		body, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s: %s (%s)", resp.Status, errResp.Error, errResp.Code)
		}
		return fmt.Errorf("%s: %s", resp.Status, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
