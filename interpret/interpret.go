// Package interpret turns a free-text lunch request into search keywords and
// an optional location hint.
package interpret

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"lunchmind/cache"
	"lunchmind/pkg/logctx"
)

var ErrNoKeywords = errors.New("interpret: no keywords found")

// DefaultKeywords stand in when interpretation fails.
var DefaultKeywords = []string{"美食", "餐廳"}

type Interpretation struct {
	Keywords     []string `json:"keywords"`
	LocationHint string   `json:"location_hint,omitempty"`
}

// Keyword joins the keywords into one search phrase.
func (i Interpretation) Keyword() string {
	return strings.Join(i.Keywords, " ")
}

type Interpreter interface {
	Interpret(ctx context.Context, text string) (Interpretation, error)
}

type fallback struct {
	inner    Interpreter
	keywords []string
	logger   *zap.Logger
}

// WithFallback never fails: when inner errors or finds no keywords, the
// default keywords are used and any location hint inner did find is kept.
// The only error passed through is a done context.
func WithFallback(inner Interpreter, logger *zap.Logger) Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fallback{inner: inner, keywords: DefaultKeywords, logger: logger}
}

func (f *fallback) Interpret(ctx context.Context, text string) (Interpretation, error) {
	got, err := f.inner.Interpret(ctx, text)
	if err == nil && len(got.Keywords) > 0 {
		return got, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Interpretation{}, ctxErr
	}
	logctx.Logger(ctx, f.logger).Info("interpretation failed, using default keywords",
		zap.String("text", text), zap.Error(err))
	return Interpretation{
		Keywords:     append([]string(nil), f.keywords...),
		LocationHint: got.LocationHint,
	}, nil
}

type cached struct {
	inner Interpreter
	layer *cache.Layer
}

// Cached memoizes successful interpretations in the analysis cache.
func Cached(inner Interpreter, layer *cache.Layer) Interpreter {
	if layer == nil {
		return inner
	}
	return &cached{inner: inner, layer: layer}
}

func (c *cached) Interpret(ctx context.Context, text string) (Interpretation, error) {
	key := cache.Fingerprint("interpret", cache.Args{"text": text})
	if hit, ok := cache.Get[Interpretation](c.layer, cache.KindAnalysis, key); ok {
		return hit, nil
	}
	got, err := c.inner.Interpret(ctx, text)
	if err != nil {
		return got, err
	}
	cache.Put(c.layer, cache.KindAnalysis, key, got)
	return got, nil
}
