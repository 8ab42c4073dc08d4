package domain

import (
	"fmt"
	"strings"
)

// Provider identifies the credential authority of an account. The set is
// closed: adding a provider means adding a profile extractor alongside it.
type Provider string

const (
	ProviderLocal  Provider = "LOCAL"
	ProviderGoogle Provider = "GOOGLE"
	ProviderGithub Provider = "GITHUB"
	ProviderGitlab Provider = "GITLAB"
)

// ParseProvider maps external provider identifiers onto the closed set.
func ParseProvider(raw string) (Provider, error) {
	switch Provider(strings.ToUpper(strings.TrimSpace(raw))) {
	case ProviderLocal:
		return ProviderLocal, nil
	case ProviderGoogle:
		return ProviderGoogle, nil
	case ProviderGithub:
		return ProviderGithub, nil
	case ProviderGitlab:
		return ProviderGitlab, nil
	default:
		return "", fmt.Errorf("%w: unsupported provider %q", ErrInvalidInput, raw)
	}
}

// ProviderProfile is the normalized federated identity payload after
// provider-specific attribute extraction.
type ProviderProfile struct {
	ProviderID    string
	Email         string
	DisplayName   string
	FirstName     string
	LastName      string
	AvatarURL     string
	EmailVerified bool
}
