package service

import "github.com/dlddu/registry-oauth/internal/domain"

// ConsentPolicy decides whether the user must approve a client explicitly
type ConsentPolicy struct {
	// DeveloperClientID names the first-party client that auto-consents only
	// after the user has enrolled as a developer.
	DeveloperClientID string
}

// RequiresExplicitConsent reports whether a consent screen must be shown.
// Only trusted clients auto-consent, and the developer client additionally
// requires a completed enrollment.
func (p ConsentPolicy) RequiresExplicitConsent(client *domain.Client, user *domain.User) bool {
	if client == nil || user == nil || !client.Trusted {
		return true
	}
	if client.ClientID == p.DeveloperClientID {
		return !user.DeveloperEnrolled
	}
	return false
}
