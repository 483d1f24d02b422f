package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/aelexs/registration-gateway/internal/domain"
	"github.com/aelexs/registration-gateway/internal/registration/app"
)

// ldapConn is the slice of *ldap.Conn the directory uses. Tests substitute
// a fake; production dials a real connection per authentication attempt.
type ldapConn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

var _ app.DirectoryAuthenticator = (*LDAPDirectory)(nil)

// LDAPDirectoryConfig holds the connection and search parameters for a
// corporate LDAP directory.
type LDAPDirectoryConfig struct {
	// URL is the directory address, e.g. "ldaps://ldap.corp.example:636".
	URL string
	// BindDN and BindPassword are the service account used for the search
	// phase. The caller's own credentials are only used for the final bind.
	BindDN       string
	BindPassword string
	// BaseDN roots the user search, e.g. "ou=people,dc=corp,dc=example".
	BaseDN string
	// UserFilter is a filter template with a single %s placeholder for the
	// escaped username, e.g. "(&(objectClass=person)(uid=%s))".
	UserFilter string
	// PhoneAttribute names the attribute carrying the E.164 number,
	// e.g. "telephoneNumber".
	PhoneAttribute string
	// Timeout bounds dial and per-request time.
	Timeout time.Duration
}

// LDAPDirectory authenticates callers with the bind-search-bind pattern:
// bind as the service account, locate the user entry, then bind as the user
// to prove the password.
type LDAPDirectory struct {
	cfg    LDAPDirectoryConfig
	dial   func(ctx context.Context) (ldapConn, error)
	logger *slog.Logger
}

// NewLDAPDirectory creates an LDAPDirectory for the given configuration.
func NewLDAPDirectory(cfg LDAPDirectoryConfig, logger *slog.Logger) *LDAPDirectory {
	d := &LDAPDirectory{cfg: cfg, logger: logger}
	d.dial = d.dialLDAP
	return d
}

func (d *LDAPDirectory) dialLDAP(_ context.Context) (ldapConn, error) {
	conn, err := ldap.DialURL(d.cfg.URL,
		ldap.DialWithDialer(&net.Dialer{Timeout: d.cfg.Timeout}))
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(d.cfg.Timeout)
	return conn, nil
}

// Authenticate resolves the caller's phone number after proving their
// password with a user bind.
func (d *LDAPDirectory) Authenticate(ctx context.Context, username, password string) (domain.PhoneNumber, error) {
	ctx, span := tracer.Start(ctx, "LDAPDirectory.Authenticate")
	defer span.End()

	// An empty password would turn the user bind into an unauthenticated
	// bind, which many servers accept.
	if password == "" {
		return domain.PhoneNumber{}, domain.ErrBadCredentials
	}

	conn, err := d.dial(ctx)
	if err != nil {
		span.RecordError(err)
		return domain.PhoneNumber{}, fmt.Errorf("ldap dial: %w: %w", domain.ErrUnavailable, err)
	}
	defer conn.Close()

	if err := conn.Bind(d.cfg.BindDN, d.cfg.BindPassword); err != nil {
		span.RecordError(err)
		return domain.PhoneNumber{}, fmt.Errorf("ldap service bind: %w: %w", domain.ErrUnavailable, err)
	}

	filter := fmt.Sprintf(d.cfg.UserFilter, escapeLDAPFilter(localPart(username)))
	result, err := conn.Search(ldap.NewSearchRequest(
		d.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		2, // enough to detect ambiguity
		0,
		false,
		filter,
		[]string{d.cfg.PhoneAttribute},
		nil,
	))
	if err != nil {
		span.RecordError(err)
		return domain.PhoneNumber{}, classifyLDAPError("ldap search", err)
	}

	switch len(result.Entries) {
	case 1:
	case 0:
		return domain.PhoneNumber{}, domain.ErrUserNotFound
	default:
		d.logger.WarnContext(ctx, "directory.ambiguous_user_entry",
			slog.Int("entries", len(result.Entries)))
		return domain.PhoneNumber{}, domain.ErrUserNotFound
	}
	entry := result.Entries[0]

	if err := conn.Bind(entry.DN, password); err != nil {
		return domain.PhoneNumber{}, classifyLDAPError("ldap user bind", err)
	}

	raw := entry.GetAttributeValue(d.cfg.PhoneAttribute)
	if raw == "" {
		return domain.PhoneNumber{}, domain.ErrNoPhoneAttribute
	}
	phone, err := domain.NewPhoneNumber(raw)
	if err != nil {
		return domain.PhoneNumber{}, fmt.Errorf("directory %s attribute: %w",
			d.cfg.PhoneAttribute, err)
	}
	return phone, nil
}

// classifyLDAPError maps LDAP result codes onto domain sentinels. Anything
// that is not a credential rejection counts as a directory outage.
func classifyLDAPError(op string, err error) error {
	if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
		return domain.ErrBadCredentials
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
}

// localPart strips an email-style domain suffix so callers may authenticate
// with either "alice" or "alice@corp.example".
func localPart(username string) string {
	if at := strings.IndexByte(username, '@'); at >= 0 {
		return username[:at]
	}
	return username
}

// ldapFilterReplacer escapes the characters with special meaning in search
// filters, RFC 4515 style, plus '/' which some servers treat specially.
var ldapFilterReplacer = strings.NewReplacer(
	`\`, `\5c`,
	`*`, `\2a`,
	`(`, `\28`,
	`)`, `\29`,
	"\x00", `\00`,
	`/`, `\2f`,
)

func escapeLDAPFilter(value string) string {
	return ldapFilterReplacer.Replace(value)
}
