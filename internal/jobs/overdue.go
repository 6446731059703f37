// Package jobs runs background maintenance tickers.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/tjms-tools/hallpass/internal/audit"
	"github.com/tjms-tools/hallpass/internal/config"
	"github.com/tjms-tools/hallpass/internal/model"
)

type OverdueStore interface {
	ListOverduePasses(ctx context.Context, before time.Time) ([]model.Pass, error)
}

// StartOverdueSweep periodically audits passes that have been open longer
// than the configured threshold so staff can chase wanderers. The sweep
// never mutates pass state.
func StartOverdueSweep(ctx context.Context, cfg config.Config, store OverdueStore, trail *audit.Trail) {
	if !cfg.OverdueEnabled {
		return
	}
	interval := cfg.OverdueInterval
	if interval <= 0 {
		interval = time.Minute
	}
	threshold := cfg.OverdueAfter
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		flagged := make(map[string]bool)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now().UTC()
				tickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				passes, err := store.ListOverduePasses(tickCtx, now.Add(-threshold))
				cancel()
				if err != nil {
					log.Printf("overdue sweep error: %v", err)
					continue
				}
				seen := make(map[string]bool, len(passes))
				for _, pass := range passes {
					key := pass.ID.String()
					seen[key] = true
					if flagged[key] {
						continue
					}
					flagged[key] = true
					trail.Log(ctx, pass.StudentID,
						"Pass "+key+" overdue, out since "+pass.CheckoutAt.Format(time.RFC3339))
				}
				// Forget closed passes so the map does not grow forever.
				for key := range flagged {
					if !seen[key] {
						delete(flagged, key)
					}
				}
			}
		}
	}()
}
