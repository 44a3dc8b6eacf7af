// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authority/internal/auth"
	"github.com/holomush/authority/internal/observability"
)

// Token families reported by prune.
const (
	familyRefresh           = "refresh"
	familyPasswordReset     = string(auth.KindPasswordReset)
	familyEmailVerification = string(auth.KindEmailVerification)
)

// expirer deletes the expired rows of one token family.
type expirer interface {
	PruneExpired(ctx context.Context) (int64, error)
}

type pruneTarget struct {
	family string
	store  expirer
}

// PruneResult is the number of rows deleted per family.
type PruneResult struct {
	Family  string `json:"family"`
	Deleted int64  `json:"deleted"`
}

// NewTokensCmd creates the tokens subcommand.
func NewTokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Maintain stored tokens",
	}
	cmd.AddCommand(newTokensPruneCmd())
	return cmd
}

func newTokensPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired refresh, reset and verification tokens",
		Long: `Delete expired rows from every token table. Revoked and used tokens
stay until they expire so replays can be recognised.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := setupLogging(cfg)

			ctx := cmd.Context()
			pool, err := connect(ctx, cfg, logger)
			if err != nil {
				return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
			}
			defer pool.Close()

			svc, err := newServices(cfg, pool, wiring{logger: logger})
			if err != nil {
				return err
			}
			results, err := pruneTokens(ctx, pruneTargets(svc), nil)
			for _, r := range results {
				cmd.Printf("%-20s %d\n", r.Family, r.Deleted)
			}
			return err
		},
	}
}

func pruneTargets(svc *services) []pruneTarget {
	return []pruneTarget{
		{family: familyRefresh, store: svc.sessions},
		{family: familyPasswordReset, store: svc.resets},
		{family: familyEmailVerification, store: svc.verifications},
	}
}

// pruneTokens prunes every target and counts the deleted rows in metrics,
// which may be nil. It stops at the first failure.
func pruneTokens(ctx context.Context, targets []pruneTarget, metrics *observability.Metrics) ([]PruneResult, error) {
	results := make([]PruneResult, 0, len(targets))
	for _, t := range targets {
		n, err := t.store.PruneExpired(ctx)
		if err != nil {
			return results, oops.Code("TOKEN_PRUNE_FAILED").With("family", t.family).Wrap(err)
		}
		if metrics != nil {
			metrics.TokensPrunedTotal.WithLabelValues(t.family).Add(float64(n))
		}
		results = append(results, PruneResult{Family: t.family, Deleted: n})
	}
	return results, nil
}

// runPruner prunes on every tick until ctx ends.
func runPruner(ctx context.Context, interval time.Duration, svc *services, metrics *observability.Metrics, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	targets := pruneTargets(svc)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			results, err := pruneTokens(ctx, targets, metrics)
			if err != nil {
				logger.Warn("token prune failed", "error", err)
				continue
			}
			logger.Info("expired tokens pruned", "results", fmt.Sprint(results))
		}
	}
}
