package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/noncmra/internal/credentials"
	"github.com/desertthunder/noncmra/internal/shared"
	"github.com/urfave/cli/v3"
)

type credentialView struct {
	ID        string `json:"id"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Source    string `json:"source"`
}

// Credentials lists the configured Smarty accounts with identifiers masked.
func (r *Runner) Credentials(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	env := config.ApplyEnv(r.lookupEnv)
	creds, err := credentialsFrom(config, env)
	if err != nil {
		return err
	}

	configured := make(map[string]bool, len(config.Smarty.Credentials))
	for _, c := range config.Smarty.Credentials {
		configured[c.AuthID] = true
	}

	views := make([]credentialView, len(creds))
	total := 0
	for i, c := range creds {
		source := shared.EnvCredentials
		if configured[c.ID] {
			source = "config"
		}
		views[i] = credentialView{ID: shared.MaskSecret(c.ID), Limit: c.Limit, Remaining: c.Remaining(), Source: source}
		total += c.Remaining()
	}

	if cmd.Bool("json") {
		return r.writeJSON(views, true)
	}

	r.writePlainHeader(fmt.Sprintf("Credentials: %d (%d lookups this run)", len(views), total))
	for i, v := range views {
		r.writePlain("%2d. %-24s %5d  (%s)\n", i+1, v.ID, v.Limit, v.Source)
	}
	return nil
}

// credentialsFrom merges configured accounts with the CREDENTIALS environment value.
func credentialsFrom(config *shared.Config, env string) ([]credentials.Credential, error) {
	creds, err := credentials.FromConfig(config.Smarty, env)
	if err != nil {
		return nil, fmt.Errorf("%w: configure [[smarty.credentials]] or set %s", err, shared.EnvCredentials)
	}
	return creds, nil
}
