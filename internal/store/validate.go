package store

import (
	"regexp"
	"strings"

	"github.com/frankmark94/channel-play-pen/internal/models"
)

// MinSecretLength is the shortest signing secret accepted.
const MinSecretLength = 10

// secretPattern is the character class a signing secret must match (base64-like).
var secretPattern = regexp.MustCompile(`^[A-Za-z0-9+/=_-]+$`)

// ValidationResult lists every rule a credential violates.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidateCredential checks a credential's format. All failing checks are reported.
func ValidateCredential(c models.Credential) ValidationResult {
	errs := []string{}

	if len(c.SigningSecret) < MinSecretLength {
		errs = append(errs, "JWT Secret must be at least 10 characters")
	}

	if strings.TrimSpace(c.ChannelID) == "" {
		errs = append(errs, "Channel ID is required")
	}

	if !strings.HasPrefix(c.APIURL, "http") {
		errs = append(errs, "Valid API URL is required")
	}

	if c.SigningSecret != "" && !secretPattern.MatchString(c.SigningSecret) {
		errs = append(errs, "JWT Secret appears to have invalid characters")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
