// package services defines interface Validator for address verification providers
//
// Smarty US Street API
package services

import (
	"context"

	"github.com/desertthunder/noncmra/internal/credentials"
	"github.com/desertthunder/noncmra/internal/models"
)

// Validator verifies one street address with a caller-supplied credential.
//
// Implementations never retry. Rejections and failures are reported as [*ValidationError].
type Validator interface {
	// Verify looks up addr using cred and returns the provider's verdict.
	Verify(ctx context.Context, addr models.Address, cred credentials.Credential) (*models.Verification, error)

	// Name returns the name of the provider (e.g., "smarty")
	Name() string
}

// SmartyCandidate is one entry of the US Street API response array.
type SmartyCandidate struct {
	InputIndex     int              `json:"input_index"`
	CandidateIndex int              `json:"candidate_index"`
	DeliveryLine1  string           `json:"delivery_line_1"`
	LastLine       string           `json:"last_line"`
	Components     SmartyComponents `json:"components"`
	Metadata       SmartyMetadata   `json:"metadata"`
	Analysis       SmartyAnalysis   `json:"analysis"`
}

// SmartyComponents holds the parsed parts of the standardized address.
type SmartyComponents struct {
	CityName          string `json:"city_name"`
	StateAbbreviation string `json:"state_abbreviation"`
	Zipcode           string `json:"zipcode"`
	Plus4Code         string `json:"plus4_code"`
}

// SmartyMetadata carries the residential delivery indicator.
type SmartyMetadata struct {
	RDI string `json:"rdi"`
}

// SmartyAnalysis carries delivery point validation results.
type SmartyAnalysis struct {
	DPVMatchCode string `json:"dpv_match_code"`
	DPVCMRA      string `json:"dpv_cmra"`
	DPVFootnotes string `json:"dpv_footnotes"`
}
