// Package problemcache serves problem metadata from memory, then the
// store, then the upstream. A failed refresh of a stale entry returns the
// stale entry flagged as such.
package problemcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/programme-lv/streaks/domain"
	"github.com/programme-lv/streaks/lcclient"
	"golang.org/x/sync/singleflight"
)

type Store interface {
	GetProblem(ctx context.Context, slug string) (*domain.ProblemMetadata, error)
	UpsertProblem(ctx context.Context, p domain.ProblemMetadata) error
}

type Fetcher interface {
	FetchProblem(ctx context.Context, slug string, sess *lcclient.Session) (domain.ProblemMetadata, error)
}

type Lookup struct {
	Problem domain.ProblemMetadata
	// Stale is set when the upstream refresh failed and an expired copy was served.
	Stale bool
}

type Options struct {
	MemoryTTL  time.Duration
	StaleAfter time.Duration
	// StaleRetry is how long a stale fallback is served from memory before
	// the upstream is tried again.
	StaleRetry time.Duration
}

func DefaultOptions() Options {
	return Options{
		MemoryTTL:  10 * time.Minute,
		StaleAfter: 7 * 24 * time.Hour,
		StaleRetry: time.Minute,
	}
}

type Cache struct {
	store   Store
	fetcher Fetcher
	mem     *cache.Cache
	sfGroup singleflight.Group
	opts    Options
	log     *slog.Logger
	now     func() time.Time
}

func New(store Store, fetcher Fetcher, opts Options) *Cache {
	def := DefaultOptions()
	if opts.MemoryTTL <= 0 {
		opts.MemoryTTL = def.MemoryTTL
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = def.StaleAfter
	}
	if opts.StaleRetry <= 0 {
		opts.StaleRetry = def.StaleRetry
	}
	return &Cache{
		store:   store,
		fetcher: fetcher,
		mem:     cache.New(opts.MemoryTTL, 2*opts.MemoryTTL),
		opts:    opts,
		log:     slog.Default().With("module", "problemcache"),
		now:     time.Now,
	}
}

// Get resolves slug. sess, when set, authenticates the upstream fetch so
// paid-only problems resolve too.
func (c *Cache) Get(ctx context.Context, slug string, sess *lcclient.Session) (Lookup, error) {
	if l, ok := c.fromMemory(slug); ok {
		return l, nil
	}

	res, err, _ := c.sfGroup.Do(slug, func() (interface{}, error) {
		// another caller may have filled it while we waited
		if l, ok := c.fromMemory(slug); ok {
			return l, nil
		}
		return c.load(ctx, slug, sess)
	})
	if err != nil {
		return Lookup{}, err
	}
	return res.(Lookup), nil
}

func (c *Cache) fromMemory(slug string) (Lookup, bool) {
	v, found := c.mem.Get(slug)
	if !found {
		return Lookup{}, false
	}
	l, ok := v.(Lookup)
	return l, ok
}

func (c *Cache) load(ctx context.Context, slug string, sess *lcclient.Session) (Lookup, error) {
	stored, err := c.store.GetProblem(ctx, slug)
	if err != nil {
		c.log.Warn("failed to read stored problem", "slug", slug, "error", err)
		stored = nil
	}
	if stored != nil && !stored.StaleAt(c.now(), c.opts.StaleAfter) {
		l := Lookup{Problem: *stored}
		c.mem.SetDefault(slug, l)
		return l, nil
	}

	fresh, err := c.fetcher.FetchProblem(ctx, slug, sess)
	if err != nil {
		if stored != nil {
			c.log.Warn("serving stale problem metadata", "slug", slug, "error", err,
				"last_fetched_at", stored.LastFetchedAt)
			l := Lookup{Problem: *stored, Stale: true}
			c.mem.Set(slug, l, c.opts.StaleRetry)
			return l, nil
		}
		return Lookup{}, fmt.Errorf("failed to fetch problem %s: %w", slug, err)
	}

	if fresh.TitleSlug == "" {
		fresh.TitleSlug = slug
	}
	if err := c.store.UpsertProblem(ctx, fresh); err != nil {
		c.log.Warn("failed to persist problem metadata", "slug", slug, "error", err)
	}
	l := Lookup{Problem: fresh}
	c.mem.SetDefault(slug, l)
	return l, nil
}
