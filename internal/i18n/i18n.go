package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

var jsonUnmarshal = json.Unmarshal

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

var (
	mu      sync.RWMutex
	bundle  *i18n.Bundle
	matcher language.Matcher
)

func init() {
	if err := Init("en"); err != nil {
		panic(err)
	}
}

// Init loads the translation bundle with lang as the default language.
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", jsonUnmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := b.ParseMessageFileBytes(data, e.Name()); err != nil {
			return fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
		slog.Debug("loaded locale file", "file", e.Name())
	}

	mu.Lock()
	bundle = b
	matcher = language.NewMatcher(b.LanguageTags())
	mu.Unlock()
	return nil
}

// Match returns the supported language closest to the given preferences,
// which may be tags or Accept-Language header values.
func Match(prefs ...string) string {
	mu.RLock()
	m := matcher
	mu.RUnlock()
	tag, _ := language.MatchStrings(m, prefs...)
	base, _ := tag.Base()
	return base.String()
}

// Translator localizes messages for one language.
type Translator struct {
	loc *i18n.Localizer
}

// NewTranslator creates a translator for the given languages, most
// preferred first.
func NewTranslator(langs ...string) Translator {
	mu.RLock()
	defer mu.RUnlock()
	return Translator{loc: i18n.NewLocalizer(bundle, langs...)}
}

func (t Translator) localize(cfg *i18n.LocalizeConfig) string {
	s, err := t.loc.Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return s
}

// T translates a message by ID.
func (t Translator) T(msgID string) string {
	return t.localize(&i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message by ID with template data.
func (t Translator) Td(msgID string, data map[string]any) string {
	return t.localize(&i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
}

// Tp translates a pluralized message by ID. Count is added to data.
func (t Translator) Tp(msgID string, count int, data map[string]any) string {
	td := map[string]any{"Count": count}
	for k, v := range data {
		td[k] = v
	}
	return t.localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: td,
	})
}

// WithTranslator stores a translator in the context.
func WithTranslator(ctx context.Context, t Translator) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext returns the translator stored in ctx, or an English one.
func FromContext(ctx context.Context) Translator {
	if t, ok := ctx.Value(ctxKey{}).(Translator); ok {
		return t
	}
	return NewTranslator("en")
}

// T translates a message by ID using the context's translator.
func T(ctx context.Context, msgID string) string {
	return FromContext(ctx).T(msgID)
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	return FromContext(ctx).Td(msgID, data)
}

// Tp translates a pluralized message by ID.
func Tp(ctx context.Context, msgID string, count int) string {
	return FromContext(ctx).Tp(msgID, count, nil)
}
