// Smarty US Street API [Validator] implementation
//
// One address per request, authenticated with the static auth-id/auth-token pair of the supplied credential.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/noncmra/internal/credentials"
	"github.com/desertthunder/noncmra/internal/models"
	"github.com/desertthunder/noncmra/internal/shared"
)

const (
	defaultSmartyBaseURL = "https://us-street.api.smarty.com"
	smartyStreetPath     = "/street-address"
	defaultSmartyTimeout = 10 * time.Second
)

// SmartyService implements [Validator] against the Smarty US Street API.
type SmartyService struct {
	api     *APIService
	license string
	match   string
	timeout time.Duration
}

// NewSmartyService creates a Smarty client from configuration. A nil client uses [http.DefaultClient].
func NewSmartyService(cfg shared.SmartyConfig, client *http.Client) *SmartyService {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultSmartyBaseURL
	}
	license := cfg.License
	if license == "" {
		license = "us-core-cloud"
	}
	match := cfg.Match
	if match == "" {
		match = "enhanced"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSmartyTimeout
	}

	return &SmartyService{
		api:     NewAPIService(baseURL, client),
		license: license,
		match:   match,
		timeout: timeout,
	}
}

// Name returns the service name.
func (s *SmartyService) Name() string {
	return "smarty"
}

// Verify looks up addr with a single candidate and maps the response onto a [models.Verification].
func (s *SmartyService) Verify(ctx context.Context, addr models.Address, cred credentials.Credential) (*models.Verification, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := url.Values{}
	query.Set("auth-id", cred.ID)
	query.Set("auth-token", cred.Secret)
	query.Set("street", addr.Line1)
	query.Set("city", addr.City)
	query.Set("state", addr.State)
	query.Set("zipcode", addr.FullZip())
	query.Set("candidates", "1")
	query.Set("match", s.match)
	query.Set("license", s.license)

	resp, err := s.api.GetWithQuery(ctx, smartyStreetPath, query)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, networkError(0, fmt.Errorf("%w after %s", shared.ErrTimeout, s.timeout))
		}
		return nil, networkError(0, err)
	}

	switch code := resp.StatusCode; {
	case code == http.StatusOK:
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return nil, rejected(code, false, "malformed input: "+statusText(resp))
	case code == http.StatusUnauthorized, code == http.StatusPaymentRequired, code == http.StatusForbidden:
		return nil, quotaExceeded(code, true)
	case code == http.StatusTooManyRequests:
		return nil, quotaExceeded(code, false)
	case code >= 500:
		return nil, networkError(code, fmt.Errorf("%w: %s", shared.ErrServiceUnavail, statusText(resp)))
	default:
		return nil, protocolError(code, false, "unexpected status %s", statusText(resp))
	}

	var candidates []SmartyCandidate
	if err := json.Unmarshal(resp.Body, &candidates); err != nil {
		return nil, protocolError(resp.StatusCode, true, "undecodable body: %v", err)
	}
	if len(candidates) == 0 {
		return nil, rejected(resp.StatusCode, true, "no candidates")
	}

	return mapCandidate(candidates[0], resp.StatusCode)
}

func mapCandidate(c SmartyCandidate, status int) (*models.Verification, error) {
	switch strings.ToUpper(strings.TrimSpace(c.Analysis.DPVMatchCode)) {
	case "N":
		return nil, rejected(status, true, "not deliverable (dpv_match_code N)")
	case "":
		// match=enhanced returns a candidate for addresses it could not match
		return nil, rejected(status, true, "no delivery point match")
	}

	var cmra bool
	switch strings.ToUpper(c.Analysis.DPVCMRA) {
	case "Y":
		cmra = true
	case "N":
	default:
		return nil, protocolError(status, true, "unknown dpv_cmra %q", c.Analysis.DPVCMRA)
	}

	var rdi string
	switch strings.ToLower(c.Metadata.RDI) {
	case "residential":
		rdi = models.RDIResidential
	case "commercial":
		rdi = models.RDICommercial
	case "":
	default:
		return nil, protocolError(status, true, "unknown rdi %q", c.Metadata.RDI)
	}

	return &models.Verification{
		CMRA:         cmra,
		Residential:  rdi == models.RDIResidential,
		RDI:          rdi,
		DPVMatchCode: c.Analysis.DPVMatchCode,
		Normalized: models.Address{
			Line1: c.DeliveryLine1,
			City:  c.Components.CityName,
			State: c.Components.StateAbbreviation,
			Zip:   c.Components.Zipcode,
			Zip4:  c.Components.Plus4Code,
		},
	}, nil
}

func statusText(resp *APIResponse) string {
	text := fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if body := strings.TrimSpace(string(resp.Body)); body != "" {
		if len(body) > 200 {
			body = body[:200]
		}
		text += ": " + body
	}
	return text
}
