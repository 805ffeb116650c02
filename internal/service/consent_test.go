package service

import (
	"testing"

	"github.com/dlddu/registry-oauth/internal/domain"
)

func TestConsentPolicy_RequiresExplicitConsent(t *testing.T) {
	policy := ConsentPolicy{DeveloperClientID: "developer-portal"}

	tests := []struct {
		name   string
		client *domain.Client
		user   *domain.User
		want   bool
	}{
		{
			name:   "should require consent for third-party client",
			client: &domain.Client{ClientID: "c1"},
			user:   &domain.User{ID: "u1", DeveloperEnrolled: true},
			want:   true,
		},
		{
			name:   "should auto-consent for trusted first-party client",
			client: &domain.Client{ClientID: "registry-web", Trusted: true},
			user:   &domain.User{ID: "u1"},
			want:   false,
		},
		{
			name:   "should require consent for developer client before enrollment",
			client: &domain.Client{ClientID: "developer-portal", Trusted: true},
			user:   &domain.User{ID: "u1"},
			want:   true,
		},
		{
			name:   "should auto-consent for developer client after enrollment",
			client: &domain.Client{ClientID: "developer-portal", Trusted: true},
			user:   &domain.User{ID: "u1", DeveloperEnrolled: true},
			want:   false,
		},
		{
			name:   "should require consent for untrusted client using the developer id",
			client: &domain.Client{ClientID: "developer-portal"},
			user:   &domain.User{ID: "u1", DeveloperEnrolled: true},
			want:   true,
		},
		{
			name:   "should require consent without a user",
			client: &domain.Client{ClientID: "registry-web", Trusted: true},
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.RequiresExplicitConsent(tt.client, tt.user); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
