// Package settings exposes the database-backed runtime configuration.
// Values live in the config table so an administrator can change directory
// and authentication behavior without a redeploy. Every read goes to the
// store; callers that need a consistent view within one operation load a
// prefix snapshot up front.
package settings

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dstall/fileharbor/internal/repository"
	apperrors "github.com/dstall/fileharbor/pkg/errors"
)

// Provider reads runtime settings. A missing key is not an error at this
// layer; callers receive the zero value or their supplied default. Store
// failures degrade the same way so that a configuration outage disables
// optional features instead of taking logins down.
type Provider interface {
	Get(ctx context.Context, key string) string
	GetDefault(ctx context.Context, key, def string) string
	GetBool(ctx context.Context, key string) bool
	GetInt(ctx context.Context, key string, def int) int
	Prefix(ctx context.Context, prefix string) map[string]string
}

type provider struct {
	repo   repository.SettingRepository
	logger *slog.Logger
}

// NewProvider creates a Provider backed by the given repository.
func NewProvider(repo repository.SettingRepository, logger *slog.Logger) Provider {
	return &provider{repo: repo, logger: logger}
}

func (p *provider) Get(ctx context.Context, key string) string {
	return p.GetDefault(ctx, key, "")
}

func (p *provider) GetDefault(ctx context.Context, key, def string) string {
	value, err := p.repo.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			p.logger.WarnContext(ctx, "setting read failed, using default",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		return def
	}
	return value
}

// GetBool treats "true", "1", "yes" and "on" as true, anything else as false.
func (p *provider) GetBool(ctx context.Context, key string) bool {
	switch strings.ToLower(strings.TrimSpace(p.Get(ctx, key))) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

func (p *provider) GetInt(ctx context.Context, key string, def int) int {
	raw := strings.TrimSpace(p.Get(ctx, key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.logger.WarnContext(ctx, "setting is not an integer, using default",
			slog.String("key", key),
			slog.String("value", raw))
		return def
	}
	return n
}

func (p *provider) Prefix(ctx context.Context, prefix string) map[string]string {
	values, err := p.repo.GetByPrefix(ctx, prefix)
	if err != nil {
		p.logger.WarnContext(ctx, "setting prefix read failed",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()))
		return map[string]string{}
	}
	return values
}
