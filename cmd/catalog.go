package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/noncmra/internal/catalog"
	"github.com/desertthunder/noncmra/internal/shared"
	"github.com/urfave/cli/v3"
)

// CatalogFetch crawls the mailbox directory and prints the result or saves it as CSV.
func (r *Runner) CatalogFetch(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	source := r.source
	if source == nil {
		source = catalog.NewATMBSource(config.Catalog, nil, shared.WithLogger(r.logger, "source", "atmb"))
	}

	r.logger.Info("fetching catalog", "source", source.Name())
	start := time.Now()
	mailboxes, err := source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch catalog: %w", err)
	}
	r.logger.Info("catalog fetched", "mailboxes", len(mailboxes), "duration", time.Since(start).Round(time.Millisecond))

	if output := cmd.String("output"); output != "" {
		if err := catalog.Save(output, mailboxes); err != nil {
			return err
		}
		r.writePlain("✓ Saved %d mailboxes to %s\n", len(mailboxes), output)
		return nil
	}

	if cmd.Bool("json") {
		return r.writeJSON(mailboxes, true)
	}

	r.writePlainHeader(fmt.Sprintf("Catalog: %d mailboxes", len(mailboxes)))
	for _, m := range mailboxes {
		r.writePlain("%4d. %s\n      %s  %s\n", m.Index+1, m.Name, m.Address, m.Price)
	}
	return nil
}
