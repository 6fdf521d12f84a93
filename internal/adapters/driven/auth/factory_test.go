package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

func TestNewTokenProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    domain.AuthMethod
		wantErr error
	}{
		{name: "empty method", cfg: Config{}, want: domain.AuthMethodNone},
		{name: "none", cfg: Config{Method: domain.AuthMethodNone}, want: domain.AuthMethodNone},
		{
			name: "basic",
			cfg:  Config{Method: domain.AuthMethodBasic, Username: "alice", Password: "pw"},
			want: domain.AuthMethodBasic,
		},
		{
			name:    "basic without username",
			cfg:     Config{Method: domain.AuthMethodBasic},
			wantErr: ErrMissingCredentials,
		},
		{
			name: "oauth",
			cfg: Config{Method: domain.AuthMethodOAuth, OAuth: domain.OAuthClientConfig{
				TenantID: "t", ClientID: "c", ClientSecret: "s",
			}},
			want: domain.AuthMethodOAuth,
		},
		{
			name: "oauth without secret",
			cfg: Config{Method: domain.AuthMethodOAuth, OAuth: domain.OAuthClientConfig{
				TenantID: "t", ClientID: "c",
			}},
			wantErr: ErrMissingCredentials,
		},
		{
			name: "oauth without tenant or token url",
			cfg: Config{Method: domain.AuthMethodOAuth, OAuth: domain.OAuthClientConfig{
				ClientID: "c", ClientSecret: "s",
			}},
			wantErr: ErrMissingCredentials,
		},
		{
			name:    "unknown method",
			cfg:     Config{Method: "kerberos"},
			wantErr: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewTokenProvider(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.AuthMethod())
		})
	}
}
