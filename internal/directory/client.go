// Package directory implements authentication and group lookups against an
// LDAP or Active Directory server. Every operation opens its own connection,
// bounds it with a network timeout, and closes it on every path. There is no
// connection pooling and no plaintext fallback after a failed TLS upgrade.
package directory

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	apperrors "github.com/dstall/fileharbor/pkg/errors"
)

// matchingRuleInChain is the Active Directory extensible-match operator that
// resolves nested group membership in a single server-side query.
const matchingRuleInChain = "1.2.840.113556.1.4.1941"

const networkTimeout = 10 * time.Second

var searchAttributes = []string{
	"dn", "memberOf", "mail", "cn", "displayName", "givenName", "sn",
	"sAMAccountName", "uid", "userPrincipalName",
}

// Identity is the directory's view of a user, captured by the follow-up
// search after a successful bind. It is request-scoped: callers may pass it
// back into IsMemberOf within the same request to skip a round trip, but it
// must never be persisted or shared across requests.
type Identity struct {
	DN          string
	Username    string
	Email       string
	CommonName  string
	DisplayName string
	GivenName   string
	Surname     string
	MemberOf    []string
}

// FullName returns the best display name the directory offered.
func (i *Identity) FullName() string {
	switch {
	case i.DisplayName != "":
		return i.DisplayName
	case i.CommonName != "":
		return i.CommonName
	case i.GivenName != "" || i.Surname != "":
		return strings.TrimSpace(i.GivenName + " " + i.Surname)
	default:
		return ""
	}
}

// conn is the subset of *ldap.Conn the client uses. Tests substitute a fake
// through the dial hook.
type conn interface {
	SetTimeout(time.Duration)
	StartTLS(*tls.Config) error
	Bind(username, password string) error
	UnauthenticatedBind(username string) error
	Search(*ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

type dialFunc func(cfg Config) (conn, error)

func dialLDAP(cfg Config) (conn, error) {
	opts := []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: networkTimeout}),
	}
	if cfg.ImplicitTLS() {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{ServerName: cfg.Host}))
	}
	return ldap.DialURL(cfg.URL(), opts...)
}

// Client performs directory operations. It holds no per-request state.
type Client struct {
	logger *slog.Logger
	dial   dialFunc
}

// NewClient creates a directory client.
func NewClient(logger *slog.Logger) *Client {
	return &Client{logger: logger, dial: dialLDAP}
}

// connect dials the server and, when configured, upgrades the connection
// with STARTTLS. An upgrade failure closes the connection and fails the
// operation; the caller never proceeds over plaintext.
func (c *Client) connect(ctx context.Context, cfg Config) (conn, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: directory host not configured", apperrors.ErrDirectoryUnreachable)
	}

	cn, err := c.dial(cfg)
	if err != nil {
		c.logger.WarnContext(ctx, "directory connect failed",
			slog.String("url", cfg.URL()),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDirectoryUnreachable, cfg.URL())
	}
	cn.SetTimeout(networkTimeout)

	if cfg.UseTLS && !cfg.ImplicitTLS() {
		if err := cn.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			c.logDirectoryError(ctx, "starttls failed", cfg.URL(), "", err)
			closeConn(ctx, c.logger, cn)
			return nil, fmt.Errorf("%w: starttls: %s", apperrors.ErrDirectoryProtocol, cfg.URL())
		}
	}

	return cn, nil
}

// Authenticate performs a bind-as-user operation. A successful bind is
// authentication success; the follow-up attribute search is opportunistic
// and its failure does not revoke the authentication.
func (c *Client) Authenticate(ctx context.Context, cfg Config, username, password string) (*Identity, error) {
	// An empty password would be treated by many servers as an anonymous
	// bind, which must never authenticate a user.
	if password == "" {
		return nil, apperrors.ErrCredentialRejected
	}

	cn, err := c.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeConn(ctx, c.logger, cn)

	bindID := BindIdentity(cfg, username)
	if err := cn.Bind(bindID, password); err != nil {
		c.logDirectoryError(ctx, "directory bind failed", cfg.URL(), bindID, err)
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return nil, apperrors.ErrCredentialRejected
		}
		return nil, fmt.Errorf("%w: bind as %s", apperrors.ErrDirectoryProtocol, bindID)
	}

	ident := c.searchIdentity(ctx, cn, cfg, username)
	if ident == nil {
		ident = &Identity{Username: username}
	}
	return ident, nil
}

// GetUserInfo fetches directory attributes for a user without authenticating
// them, binding as the service account when one is configured and
// anonymously otherwise.
func (c *Client) GetUserInfo(ctx context.Context, cfg Config, username string) (*Identity, error) {
	cn, err := c.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeConn(ctx, c.logger, cn)

	if err := c.serviceBind(ctx, cn, cfg); err != nil {
		return nil, err
	}

	ident := c.searchIdentity(ctx, cn, cfg, username)
	if ident == nil {
		return nil, fmt.Errorf("%w: user %s not found in directory", apperrors.ErrDirectoryProtocol, username)
	}
	return ident, nil
}

// IsMemberOf reports whether the user belongs to the group, resolving nested
// membership. It checks the request-scoped cached identity first, then asks
// the server with the matching-rule-in-chain operator, then falls back to a
// flat memberOf scan. A non-nil error means membership is unknown; callers
// must treat unknown as not-a-member.
func (c *Client) IsMemberOf(ctx context.Context, cfg Config, username string, ident *Identity, groupDN string) (bool, error) {
	if ident != nil {
		for _, dn := range ident.MemberOf {
			if strings.EqualFold(dn, groupDN) {
				return true, nil
			}
		}
	}

	cn, err := c.connect(ctx, cfg)
	if err != nil {
		return false, err
	}
	defer closeConn(ctx, c.logger, cn)

	if err := c.serviceBind(ctx, cn, cfg); err != nil {
		return false, err
	}

	member, chainErr := c.searchChainMembership(cn, cfg, username, groupDN)
	if chainErr == nil {
		return member, nil
	}
	c.logDirectoryError(ctx, "chain membership search failed, trying flat memberOf", cfg.URL(), groupDN, chainErr)

	member, flatErr := c.searchFlatMembership(cn, cfg, username, groupDN)
	if flatErr != nil {
		c.logDirectoryError(ctx, "flat membership search failed", cfg.URL(), groupDN, flatErr)
		return false, fmt.Errorf("%w: membership search for %s", apperrors.ErrDirectoryProtocol, username)
	}
	return member, nil
}

func (c *Client) serviceBind(ctx context.Context, cn conn, cfg Config) error {
	if cfg.ServiceBindDN == "" {
		if err := cn.UnauthenticatedBind(""); err != nil {
			c.logDirectoryError(ctx, "anonymous bind failed", cfg.URL(), "", err)
			return fmt.Errorf("%w: anonymous bind", apperrors.ErrDirectoryProtocol)
		}
		return nil
	}
	if err := cn.Bind(cfg.ServiceBindDN, cfg.ServiceBindPassword); err != nil {
		c.logDirectoryError(ctx, "service bind failed", cfg.URL(), cfg.ServiceBindDN, err)
		return fmt.Errorf("%w: service bind as %s", apperrors.ErrDirectoryProtocol, cfg.ServiceBindDN)
	}
	return nil
}

// searchIdentity runs the attribute search for a user and returns nil when
// the search fails or matches nothing.
func (c *Client) searchIdentity(ctx context.Context, cn conn, cfg Config, username string) *Identity {
	req := ldap.NewSearchRequest(
		cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1, 0, false,
		userFilter(cfg, username),
		searchAttributes,
		nil,
	)

	res, err := cn.Search(req)
	if err != nil {
		c.logDirectoryError(ctx, "directory attribute search failed", cfg.URL(), cfg.BaseDN, err)
		return nil
	}
	if len(res.Entries) == 0 {
		return nil
	}

	e := res.Entries[0]
	return &Identity{
		DN:          e.DN,
		Username:    username,
		Email:       e.GetAttributeValue("mail"),
		CommonName:  e.GetAttributeValue("cn"),
		DisplayName: e.GetAttributeValue("displayName"),
		GivenName:   e.GetAttributeValue("givenName"),
		Surname:     e.GetAttributeValue("sn"),
		MemberOf:    e.GetAttributeValues("memberOf"),
	}
}

func (c *Client) searchChainMembership(cn conn, cfg Config, username, groupDN string) (bool, error) {
	filter := fmt.Sprintf("(&(%s=%s)(memberOf:%s:=%s))",
		usernameAttribute(cfg),
		ldap.EscapeFilter(username),
		matchingRuleInChain,
		ldap.EscapeFilter(groupDN),
	)
	req := ldap.NewSearchRequest(
		cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1, 0, false,
		filter,
		[]string{"dn"},
		nil,
	)
	res, err := cn.Search(req)
	if err != nil {
		return false, err
	}
	return len(res.Entries) > 0, nil
}

func (c *Client) searchFlatMembership(cn conn, cfg Config, username, groupDN string) (bool, error) {
	req := ldap.NewSearchRequest(
		cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1, 0, false,
		userFilter(cfg, username),
		[]string{"memberOf"},
		nil,
	)
	res, err := cn.Search(req)
	if err != nil {
		return false, err
	}
	if len(res.Entries) == 0 {
		return false, nil
	}
	for _, dn := range res.Entries[0].GetAttributeValues("memberOf") {
		if strings.EqualFold(dn, groupDN) {
			return true, nil
		}
	}
	return false, nil
}

// usernameAttribute picks the attribute users log in with. A uid-style bind
// template indicates a generic LDAP schema rather than Active Directory.
func usernameAttribute(cfg Config) string {
	if strings.Contains(strings.ToLower(cfg.BindTemplate), "uid=") {
		return "uid"
	}
	return "sAMAccountName"
}

// userFilter matches on the login attribute, OR-ed with a UPN match when a
// domain is configured.
func userFilter(cfg Config, username string) string {
	escaped := ldap.EscapeFilter(username)
	base := fmt.Sprintf("(%s=%s)", usernameAttribute(cfg), escaped)
	if cfg.Domain == "" {
		return base
	}
	return fmt.Sprintf("(|%s(userPrincipalName=%s@%s))", base, escaped, ldap.EscapeFilter(cfg.Domain))
}

func (c *Client) logDirectoryError(ctx context.Context, msg, url, dn string, err error) {
	attrs := []any{
		slog.String("url", url),
		slog.String("error", err.Error()),
	}
	if dn != "" {
		attrs = append(attrs, slog.String("dn", dn))
	}
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		attrs = append(attrs, slog.Uint64("result_code", uint64(ldapErr.ResultCode)))
	}
	c.logger.WarnContext(ctx, msg, attrs...)
}

func closeConn(ctx context.Context, logger *slog.Logger, cn conn) {
	if err := cn.Close(); err != nil {
		logger.DebugContext(ctx, "directory connection close failed", slog.String("error", err.Error()))
	}
}
