// Package i18n resolves `t:<key>{k=v,...}` markers (C10) against the
// per-(bot,locale,key) translation table, honoring user/chat locale
// preference before falling back to the bot's default and then "ru".
package i18n

import (
	"context"
	"regexp"
	"strings"

	"github.com/tgdsl/runtime/internal/storage"
	"github.com/tgdsl/runtime/internal/template"
)

// FallbackLocale is the final link in the resolution chain when neither the
// user, the chat, nor the bot has a preference set.
const FallbackLocale = "ru"

var markerRe = regexp.MustCompile(`^t:([^{\s]+)(?:\{(.*)\})?$`)

type Resolver struct {
	locales storage.LocaleStore
	keys    storage.I18nStore
}

func New(locales storage.LocaleStore, keys storage.I18nStore) *Resolver {
	return &Resolver{locales: locales, keys: keys}
}

// ResolveLocale walks per-user preference -> per-chat preference -> the
// bot's configured default -> "ru".
func (r *Resolver) ResolveLocale(ctx context.Context, botID, userID, chatID, botDefault string) (string, error) {
	if userID != "" {
		if loc, ok, err := r.locales.UserLocale(ctx, botID, userID); err != nil {
			return "", err
		} else if ok {
			return loc, nil
		}
	}
	if chatID != "" {
		if loc, ok, err := r.locales.ChatLocale(ctx, botID, chatID); err != nil {
			return "", err
		} else if ok {
			return loc, nil
		}
	}
	if botDefault != "" {
		return botDefault, nil
	}
	return FallbackLocale, nil
}

// IsMarker reports whether s looks like a `t:key{...}` marker rather than
// literal text.
func IsMarker(s string) bool {
	return markerRe.MatchString(s)
}

// Translate resolves a marker against locale's translation table and
// substitutes any {k=v} placeholders using the §4.1 scalar template
// vocabulary. Text that isn't a marker passes through unchanged. A key with
// no translation for locale falls back to the literal marker, so a missing
// translation is visible rather than silently blank.
func (r *Resolver) Translate(ctx context.Context, botID, locale, marker string) (string, error) {
	m := markerRe.FindStringSubmatch(marker)
	if m == nil {
		return marker, nil
	}
	key, rawParams := m[1], m[2]

	value, ok, err := r.keys.Get(ctx, botID, locale, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return marker, nil
	}

	params := parseParams(rawParams)
	rendered, err := template.Render(value, params, "")
	if err != nil {
		return marker, nil
	}
	return rendered, nil
}

func parseParams(raw string) template.Scope {
	scope := template.Scope{}
	if raw == "" {
		return scope
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		scope[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return scope
}
