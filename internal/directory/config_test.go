package directory

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// mapSettings is an in-memory settings.Provider for config tests.
type mapSettings map[string]string

func (m mapSettings) Get(_ context.Context, key string) string { return m[key] }

func (m mapSettings) GetDefault(_ context.Context, key, def string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

func (m mapSettings) GetBool(_ context.Context, key string) bool {
	switch strings.ToLower(m[key]) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

func (m mapSettings) GetInt(_ context.Context, key string, def int) int {
	n, err := strconv.Atoi(m[key])
	if err != nil {
		return def
	}
	return n
}

func (m mapSettings) Prefix(_ context.Context, prefix string) map[string]string {
	out := map[string]string{}
	for k, v := range m {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}

func TestLoadConfig(t *testing.T) {
	s := mapSettings{
		"ad_host":                  "dc01.corp.example.com",
		"ad_use_tls":               "true",
		"ad_domain":                "corp.example.com",
		"ad_service_bind_dn":       "CN=svc,DC=corp,DC=example,DC=com",
		"ad_service_bind_password": "svc-pw",
		"ad_admin_group":           "CN=admins,DC=corp,DC=example,DC=com",
	}

	cfg := LoadConfig(context.Background(), s, PrefixAD)
	assert.True(t, cfg.IsAD())
	assert.Equal(t, "dc01.corp.example.com", cfg.Host)
	assert.Equal(t, 389, cfg.Port, "plaintext default port when ssl is off")
	assert.True(t, cfg.UseTLS)
	assert.False(t, cfg.UseSSL)
	assert.Equal(t, "DC=corp,DC=example,DC=com", cfg.BaseDN, "base dn derived from domain")
	assert.Equal(t, "CN=admins,DC=corp,DC=example,DC=com", cfg.AdminGroupDN)
}

func TestLoadConfig_SSLDefaultsPort636(t *testing.T) {
	s := mapSettings{
		"ldap_host":    "ldap.example.com",
		"ldap_use_ssl": "true",
	}

	cfg := LoadConfig(context.Background(), s, PrefixLDAP)
	assert.False(t, cfg.IsAD())
	assert.Equal(t, 636, cfg.Port)
	assert.True(t, cfg.ImplicitTLS())
	assert.Equal(t, "ldaps://ldap.example.com:636", cfg.URL())
}

func TestDeriveBaseDN(t *testing.T) {
	cases := map[string]struct {
		explicit string
		domain   string
		host     string
		want     string
	}{
		"explicit wins": {
			explicit: "OU=people,DC=corp,DC=example,DC=com",
			domain:   "other.example.com",
			host:     "ldap.example.com",
			want:     "OU=people,DC=corp,DC=example,DC=com",
		},
		"from domain": {
			domain: "corp.example.com",
			host:   "ldap01",
			want:   "DC=corp,DC=example,DC=com",
		},
		"from dotted host": {
			host: "ldap.example.com",
			want: "DC=ldap,DC=example,DC=com",
		},
		"bare host yields empty": {
			host: "ldap01",
			want: "",
		},
		"everything empty": {
			want: "",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveBaseDN(tc.explicit, tc.domain, tc.host))
		})
	}
}

func TestBindIdentity(t *testing.T) {
	cases := map[string]struct {
		cfg  Config
		want string
	}{
		"template placeholder wins": {
			cfg: Config{
				BindTemplate: "uid={username},OU=people,DC=example,DC=com",
				Domain:       "example.com",
			},
			want: "uid=alice,OU=people,DC=example,DC=com",
		},
		"upn from domain": {
			cfg:  Config{Domain: "corp.example.com", Host: "dc01"},
			want: "alice@corp.example.com",
		},
		"domain recovered from base dn": {
			cfg:  Config{BaseDN: "OU=staff,DC=corp,DC=example,DC=com", Host: "dc01"},
			want: "alice@corp.example.com",
		},
		"host as last resort": {
			cfg:  Config{Host: "dc01"},
			want: "alice@dc01",
		},
		"template without placeholder is ignored": {
			cfg:  Config{BindTemplate: "CN=static,DC=example,DC=com", Domain: "example.com"},
			want: "alice@example.com",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, BindIdentity(tc.cfg, "alice"))
		})
	}
}

func TestConfig_URL(t *testing.T) {
	assert.Equal(t, "ldap://dc01:389", Config{Host: "dc01", Port: 389}.URL())
	assert.Equal(t, "ldaps://dc01:636", Config{Host: "dc01", Port: 636}.URL())
	assert.Equal(t, "ldaps://dc01:3269", Config{Host: "dc01", Port: 3269, UseSSL: true}.URL())
}

func TestUserFilter(t *testing.T) {
	t.Run("ad without domain", func(t *testing.T) {
		got := userFilter(Config{}, "alice")
		assert.Equal(t, "(sAMAccountName=alice)", got)
	})

	t.Run("ad with domain adds upn branch", func(t *testing.T) {
		got := userFilter(Config{Domain: "corp.example.com"}, "alice")
		assert.Equal(t, "(|(sAMAccountName=alice)(userPrincipalName=alice@corp.example.com))", got)
	})

	t.Run("uid template switches attribute", func(t *testing.T) {
		got := userFilter(Config{BindTemplate: "uid={username},DC=example,DC=com"}, "alice")
		assert.Equal(t, "(uid=alice)", got)
	})

	t.Run("filter metacharacters escaped", func(t *testing.T) {
		got := userFilter(Config{}, "ali*ce")
		assert.Equal(t, "(sAMAccountName=ali\\2ace)", got)
	})
}
