package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/dstall/fileharbor/internal/settings"
)

// Prefixes select which family of config keys a directory operation reads.
// Generic LDAP and Active Directory carry separate settings so both can be
// configured at once with AD taking precedence.
const (
	PrefixLDAP = "ldap_"
	PrefixAD   = "ad_"
)

// Config holds the directory connection parameters for one operation. It is
// loaded fresh at the start of every directory call and never cached across
// requests, so an administrator's change takes effect on the next login.
type Config struct {
	Prefix              string
	Host                string
	Port                int
	UseSSL              bool
	UseTLS              bool
	BindTemplate        string
	ServiceBindDN       string
	ServiceBindPassword string
	BaseDN              string
	Domain              string
	AdminGroupDN        string
}

// LoadConfig reads the prefixed directory settings. BaseDN falls back to a
// value derived from the domain or host when not set explicitly.
func LoadConfig(ctx context.Context, s settings.Provider, prefix string) Config {
	cfg := Config{
		Prefix:              prefix,
		Host:                s.Get(ctx, prefix+"host"),
		UseSSL:              s.GetBool(ctx, prefix+"use_ssl"),
		UseTLS:              s.GetBool(ctx, prefix+"use_tls"),
		BindTemplate:        s.Get(ctx, prefix+"bind_dn"),
		ServiceBindDN:       s.Get(ctx, prefix+"service_bind_dn"),
		ServiceBindPassword: s.Get(ctx, prefix+"service_bind_password"),
		Domain:              s.Get(ctx, prefix+"domain"),
		AdminGroupDN:        s.Get(ctx, prefix+"admin_group"),
	}

	defaultPort := 389
	if cfg.UseSSL {
		defaultPort = 636
	}
	cfg.Port = s.GetInt(ctx, prefix+"port", defaultPort)

	cfg.BaseDN = DeriveBaseDN(s.Get(ctx, prefix+"base_dn"), cfg.Domain, cfg.Host)

	return cfg
}

// IsAD reports whether this config came from the Active Directory prefix.
func (c Config) IsAD() bool {
	return c.Prefix == PrefixAD
}

// ImplicitTLS reports whether the connection is TLS from the first byte,
// either by flag or by the conventional ldaps port.
func (c Config) ImplicitTLS() bool {
	return c.UseSSL || c.Port == 636
}

// URL builds the dial target. Implicit TLS selects the ldaps scheme;
// STARTTLS upgrades happen after connecting and do not change the scheme.
func (c Config) URL() string {
	scheme := "ldap"
	if c.ImplicitTLS() {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// DeriveBaseDN returns the explicit base DN when present, otherwise builds
// one from the dotted domain, otherwise from a dotted host. A host with no
// dots yields an empty base DN.
func DeriveBaseDN(explicit, domain, host string) string {
	if explicit != "" {
		return explicit
	}
	if dn := dnFromDotted(domain); dn != "" {
		return dn
	}
	return dnFromDotted(host)
}

func dnFromDotted(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || !strings.Contains(name, ".") {
		return ""
	}
	parts := strings.Split(name, ".")
	components := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		components = append(components, "DC="+p)
	}
	return strings.Join(components, ",")
}

// BindIdentity derives the name presented to the directory on a user bind.
// Precedence: an explicit DN template with a {username} placeholder, then a
// UPN built from the configured domain, then a domain recovered from the
// base DN's DC components, then username@host as a last resort.
func BindIdentity(cfg Config, username string) string {
	if strings.Contains(cfg.BindTemplate, "{username}") {
		return strings.ReplaceAll(cfg.BindTemplate, "{username}", username)
	}
	if cfg.Domain != "" {
		return username + "@" + cfg.Domain
	}
	if domain := domainFromBaseDN(cfg.BaseDN); domain != "" {
		return username + "@" + domain
	}
	return username + "@" + cfg.Host
}

// domainFromBaseDN rebuilds a dotted domain from the DC components of a DN,
// so "DC=corp,DC=example,DC=com" becomes "corp.example.com". Non-DC
// components (OU, CN) are skipped.
func domainFromBaseDN(baseDN string) string {
	var labels []string
	for _, rdn := range strings.Split(baseDN, ",") {
		rdn = strings.TrimSpace(rdn)
		if len(rdn) > 3 && strings.EqualFold(rdn[:3], "DC=") {
			labels = append(labels, rdn[3:])
		}
	}
	return strings.Join(labels, ".")
}
