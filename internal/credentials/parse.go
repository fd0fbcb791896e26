package credentials

import (
	"fmt"
	"strings"

	"github.com/desertthunder/noncmra/internal/shared"
)

// ParseCredentials parses the CREDENTIALS format `ID1=SECRET1[,ID2=SECRET2]*`.
//
// Every credential gets the same monthly limit. An empty value is [shared.ErrMissingCredentials];
// a pair without both sides, a non-positive limit or a repeated ID is [shared.ErrInvalidCredentials].
func ParseCredentials(s string, limit int) ([]Credential, error) {
	if strings.TrimSpace(s) == "" {
		return nil, shared.ErrMissingCredentials
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", shared.ErrInvalidCredentials, limit)
	}

	seen := make(map[string]bool)
	var creds []Credential
	for i, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		id, secret, ok := strings.Cut(pair, "=")
		id, secret = strings.TrimSpace(id), strings.TrimSpace(secret)
		if !ok || id == "" || secret == "" {
			return nil, fmt.Errorf("%w: entry %d is not ID=SECRET", shared.ErrInvalidCredentials, i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate id %s", shared.ErrInvalidCredentials, id)
		}
		seen[id] = true
		creds = append(creds, Credential{ID: id, Secret: secret, Limit: limit})
	}

	if len(creds) == 0 {
		return nil, shared.ErrMissingCredentials
	}
	return creds, nil
}

// FromConfig merges configured accounts with the raw CREDENTIALS value.
//
// Configured accounts come first and keep their own quota when set. Environment entries
// whose ID is already configured are ignored.
func FromConfig(cfg shared.SmartyConfig, env string) ([]Credential, error) {
	var creds []Credential
	seen := make(map[string]bool)

	for i, c := range cfg.Credentials {
		if c.AuthID == "" || c.AuthToken == "" {
			return nil, fmt.Errorf("%w: smarty.credentials[%d] needs auth_id and auth_token", shared.ErrInvalidCredentials, i)
		}
		if seen[c.AuthID] {
			return nil, fmt.Errorf("%w: duplicate id %s", shared.ErrInvalidCredentials, c.AuthID)
		}
		limit := c.Quota
		if limit <= 0 {
			limit = cfg.MonthlyQuota
		}
		seen[c.AuthID] = true
		creds = append(creds, Credential{ID: c.AuthID, Secret: c.AuthToken, Limit: limit})
	}

	if strings.TrimSpace(env) != "" {
		parsed, err := ParseCredentials(env, cfg.MonthlyQuota)
		if err != nil {
			return nil, err
		}
		for _, c := range parsed {
			if !seen[c.ID] {
				seen[c.ID] = true
				creds = append(creds, c)
			}
		}
	}

	if len(creds) == 0 {
		return nil, shared.ErrMissingCredentials
	}
	return creds, nil
}
