package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/time/rate"

	"tagwatch/internal/watch"
	logx "tagwatch/pkg/logx"
)

const (
	// filteredPageSize is how many candidates are inspected when a filter is set.
	filteredPageSize = 30
	// releaseMinPage is the smallest release page requested.
	releaseMinPage = 10
)

// GitHubConfig configures the GitHub resolver.
type GitHubConfig struct {
	Token string
	// BaseURL is the REST API root; empty means api.github.com. GitHub Enterprise
	// servers use https://host/api/v3/.
	BaseURL string
	// RatePerSec caps outgoing API calls; 0 disables the limiter.
	RatePerSec float64
	Filter     *Filter
	HTTPClient *http.Client
	UserAgent  string
}

// GitHub resolves entities against the GitHub REST API.
type GitHub struct {
	client  *github.Client
	limiter *rate.Limiter
	filter  *Filter
	log     logx.Logger
}

func NewGitHub(cfg GitHubConfig, log logx.Logger) (*GitHub, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	c := github.NewClient(hc)
	if tok := strings.TrimSpace(cfg.Token); tok != "" {
		c = c.WithAuthToken(tok)
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, errors.New("github.base_url: " + err.Error())
		}
		c.BaseURL = u
	}
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	var lim *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return &GitHub{
		client:  c,
		limiter: lim,
		filter:  cfg.Filter,
		log:     log.With(logx.String("comp", "resolver.github")),
	}, nil
}

// Resolve implements PreferReleaseThenTag.
func (g *GitHub) Resolve(ctx context.Context, e watch.Entity) (watch.Observation, error) {
	return PreferReleaseThenTag(ctx, e, g.latestRelease, g.latestTag)
}

// PreferReleaseThenTag returns the release observation when there is one and
// only consults tags when the entity has no releases at all. A release lookup
// error is returned as is; it never triggers the tag fallback.
func PreferReleaseThenTag(ctx context.Context, e watch.Entity, release, tag func(context.Context, watch.Entity) (watch.Observation, error)) (watch.Observation, error) {
	obs, err := release(ctx, e)
	if err != nil || !obs.Empty() {
		return obs, err
	}
	return tag(ctx, e)
}

func (g *GitHub) pageSize() int {
	if g.filter != nil {
		return filteredPageSize
	}
	return 1
}

// releasePageSize leaves room for drafts listed ahead of the newest published
// release. Tags have no drafts, so pageSize is enough for them.
func (g *GitHub) releasePageSize() int {
	return max(g.pageSize(), releaseMinPage)
}

func (g *GitHub) wait(ctx context.Context, e watch.Entity, op string) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return &Error{Entity: e, Op: op, Kind: ErrTimeout, Err: err}
	}
	return nil
}

func (g *GitHub) latestRelease(ctx context.Context, e watch.Entity) (watch.Observation, error) {
	const op = "list releases"
	if err := g.wait(ctx, e, op); err != nil {
		return watch.Observation{}, err
	}
	rels, resp, err := g.client.Repositories.ListReleases(ctx, e.Owner, e.Name, &github.ListOptions{PerPage: g.releasePageSize()})
	if err != nil {
		return watch.Observation{}, classify(e, op, err)
	}
	g.traceRate(e, op, resp)

	for _, r := range rels {
		if r == nil || r.GetDraft() || r.GetTagName() == "" {
			continue
		}
		obs := watch.Observation{
			ID:         r.GetTagName(),
			Source:     watch.SourceRelease,
			URL:        r.GetHTMLURL(),
			Prerelease: r.GetPrerelease(),
		}
		ok, err := g.filter.Accept(Candidate{Tag: obs.ID, Entity: e, Source: obs.Source, Prerelease: obs.Prerelease})
		if err != nil {
			return watch.Observation{}, &Error{Entity: e, Op: op, Kind: ErrFilter, Err: err}
		}
		if ok {
			return obs, nil
		}
	}
	return watch.Observation{}, nil
}

func (g *GitHub) latestTag(ctx context.Context, e watch.Entity) (watch.Observation, error) {
	const op = "list tags"
	if err := g.wait(ctx, e, op); err != nil {
		return watch.Observation{}, err
	}
	tags, resp, err := g.client.Repositories.ListTags(ctx, e.Owner, e.Name, &github.ListOptions{PerPage: g.pageSize()})
	if err != nil {
		return watch.Observation{}, classify(e, op, err)
	}
	g.traceRate(e, op, resp)

	for _, t := range tags {
		if t == nil || t.GetName() == "" {
			continue
		}
		ok, err := g.filter.Accept(Candidate{Tag: t.GetName(), Entity: e, Source: watch.SourceTag})
		if err != nil {
			return watch.Observation{}, &Error{Entity: e, Op: op, Kind: ErrFilter, Err: err}
		}
		if ok {
			return watch.Observation{ID: t.GetName(), Source: watch.SourceTag}, nil
		}
	}
	return watch.Observation{}, nil
}

func (g *GitHub) traceRate(e watch.Entity, op string, resp *github.Response) {
	if resp == nil || !g.log.Enabled(logx.LevelTrace) {
		return
	}
	g.log.Trace("github call",
		logx.String("repo", e.Key()),
		logx.String("op", op),
		logx.Int("rate_remaining", resp.Rate.Remaining),
		logx.Time("rate_reset", resp.Rate.Reset.Time),
	)
}
