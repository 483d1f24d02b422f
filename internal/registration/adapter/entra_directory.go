package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/registration/app"
)

var _ app.DirectoryAuthenticator = (*EntraDirectory)(nil)

// EntraDirectoryConfig holds the endpoints and client identity for a cloud
// identity provider with an OAuth2 password grant and an OIDC-style
// userinfo surface.
type EntraDirectoryConfig struct {
	// TokenURL is the tenant token endpoint.
	TokenURL string
	// ClientID identifies this service to the provider.
	ClientID string
	// Scope requested on the password grant.
	Scope string
	// UserinfoURL returns the caller's profile, including phone attributes.
	UserinfoURL string
}

// EntraDirectory authenticates callers against a cloud identity provider:
// a resource-owner password grant proves the credentials, then a profile
// lookup with the issued token yields the phone number.
type EntraDirectory struct {
	cfg    EntraDirectoryConfig
	client httpDoer
	logger *slog.Logger
}

// NewEntraDirectory creates an EntraDirectory using the given HTTP client.
func NewEntraDirectory(cfg EntraDirectoryConfig, client httpDoer, logger *slog.Logger) *EntraDirectory {
	if client == nil {
		client = http.DefaultClient
	}
	return &EntraDirectory{cfg: cfg, client: client, logger: logger}
}

// userNotFoundMarker appears in provider error descriptions when the account
// does not exist in the tenant.
const userNotFoundMarker = "AADSTS50034"

// Authenticate proves the credentials with a password grant and resolves
// the phone number from the caller's profile.
func (d *EntraDirectory) Authenticate(ctx context.Context, username, password string) (domain.PhoneNumber, error) {
	ctx, span := tracer.Start(ctx, "EntraDirectory.Authenticate")
	defer span.End()

	token, err := d.passwordGrant(ctx, username, password)
	if err != nil {
		span.RecordError(err)
		return domain.PhoneNumber{}, err
	}
	return d.lookupPhone(ctx, token)
}

func (d *EntraDirectory) passwordGrant(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", d.cfg.ClientID)
	form.Set("scope", d.cfg.Scope)
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w: %w", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("token response: %w: %w", domain.ErrUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var grant struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal(body, &grant); err != nil || grant.AccessToken == "" {
			return "", fmt.Errorf("token response malformed: %w", domain.ErrUnavailable)
		}
		return grant.AccessToken, nil
	case http.StatusBadRequest, http.StatusUnauthorized:
		var failure struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		_ = json.Unmarshal(body, &failure)
		if strings.Contains(failure.Description, userNotFoundMarker) {
			return "", domain.ErrUserNotFound
		}
		return "", domain.ErrBadCredentials
	case http.StatusTooManyRequests:
		return "", domain.ErrDirectoryRateLimit
	default:
		return "", fmt.Errorf("token endpoint status %d: %w", resp.StatusCode, domain.ErrUnavailable)
	}
}

func (d *EntraDirectory) lookupPhone(ctx context.Context, token string) (domain.PhoneNumber, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.UserinfoURL, nil)
	if err != nil {
		return domain.PhoneNumber{}, fmt.Errorf("userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		return domain.PhoneNumber{}, fmt.Errorf("userinfo request: %w: %w", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.PhoneNumber{}, fmt.Errorf("userinfo response: %w: %w", domain.ErrUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return domain.PhoneNumber{}, domain.ErrDirectoryRateLimit
	default:
		return domain.PhoneNumber{}, fmt.Errorf("userinfo status %d: %w", resp.StatusCode, domain.ErrUnavailable)
	}

	var profile struct {
		MobilePhone    string   `json:"mobilePhone"`
		BusinessPhones []string `json:"businessPhones"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return domain.PhoneNumber{}, fmt.Errorf("userinfo malformed: %w", domain.ErrUnavailable)
	}

	raw := profile.MobilePhone
	if raw == "" && len(profile.BusinessPhones) > 0 {
		raw = profile.BusinessPhones[0]
	}
	if raw == "" {
		return domain.PhoneNumber{}, domain.ErrNoPhoneAttribute
	}
	phone, err := domain.NewPhoneNumber(raw)
	if err != nil {
		return domain.PhoneNumber{}, fmt.Errorf("profile phone attribute: %w", err)
	}
	return phone, nil
}
