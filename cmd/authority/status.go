// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authority/internal/config"
	"github.com/holomush/authority/internal/store"
)

// Component names reported by status.
const (
	componentDatabase = "database"
	componentServer   = "server"
)

// statusTimeout bounds each probe.
const statusTimeout = 3 * time.Second

// ComponentStatus holds the health of one component.
type ComponentStatus struct {
	Component string `json:"component"`
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	sc := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of the database and a running server",
		Long: `Show the health of the database (reachability, schema version and
pending migrations) and the readiness of a running server, probed through
its metrics address.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(cfg)
			return runStatus(cmd, cfg, sc)
		},
	}

	cmd.Flags().BoolVar(&sc.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *config.Config, sc *statusConfig) error {
	ctx := cmd.Context()
	statuses := []ComponentStatus{
		checkDatabase(ctx, cfg),
		checkServer(ctx, &http.Client{Timeout: statusTimeout}, cfg.Metrics.Addr),
	}

	if sc.jsonOutput {
		output, err := formatStatusJSON(statuses)
		if err != nil {
			return err
		}
		cmd.Println(output)
		return nil
	}
	cmd.Print(formatStatusTable(statuses))
	return nil
}

// checkDatabase pings the database and reads the migration state.
func checkDatabase(ctx context.Context, cfg *config.Config) ComponentStatus {
	status := ComponentStatus{Component: componentDatabase}

	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	pool, err := store.Connect(ctx, cfg.Database.DSN(), store.ConnectOptions{MaxConns: 1, Attempts: 1})
	if err != nil {
		status.Error = err.Error()
		return status
	}
	pool.Close()

	m, err := migratorFactory(cfg.Database.DSN())
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer func() { _ = m.Close() }()

	return describeSchema(m)
}

// describeSchema reports the applied version and pending count. A dirty
// schema or pending migrations mark the database unhealthy.
func describeSchema(m Migrator) ComponentStatus {
	status := ComponentStatus{Component: componentDatabase}

	version, dirty, err := m.Version()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	pending, err := m.Pending()
	if err != nil {
		status.Error = err.Error()
		return status
	}

	status.Detail = fmt.Sprintf("schema v%d, %d pending", version, len(pending))
	switch {
	case dirty:
		status.Error = fmt.Sprintf("schema v%d is dirty; run migrate force", version)
	case len(pending) > 0:
		status.Error = "migrations pending; run migrate"
	default:
		status.Healthy = true
	}
	return status
}

// checkServer asks a running server's observability listener whether it is
// ready. An empty addr means the probe is disabled.
func checkServer(ctx context.Context, client *http.Client, addr string) ComponentStatus {
	status := ComponentStatus{Component: componentServer}
	if addr == "" {
		status.Error = "metrics address not configured"
		return status
	}

	url := addr
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/healthz/readiness", http.NoBody)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	resp, err := client.Do(req)
	if err != nil {
		status.Error = "not running"
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		status.Detail = "not ready"
		status.Error = fmt.Sprintf("readiness returned %d", resp.StatusCode)
		return status
	}
	status.Healthy = true
	status.Detail = "ready"
	return status
}

// formatStatusTable formats the statuses as a human-readable table.
func formatStatusTable(statuses []ComponentStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tDETAIL")
	_, _ = fmt.Fprintln(w, "---------\t------\t------")

	for _, s := range statuses {
		state := "ok"
		detail := s.Detail
		if !s.Healthy {
			state = "error"
			if s.Error != "" {
				detail = s.Error
			}
		}
		if detail == "" {
			detail = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Component, state, detail)
	}

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the statuses as JSON.
func formatStatusJSON(statuses []ComponentStatus) (string, error) {
	data, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return "", oops.Code("STATUS_ENCODE_FAILED").Wrap(err)
	}
	return string(data), nil
}
