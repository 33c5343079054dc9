package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tagwatch/internal/watch"
)

type fakeGitHub struct {
	releases     http.HandlerFunc
	tags         http.HandlerFunc
	releaseCalls atomic.Int32
	tagCalls     atomic.Int32
	lastAuth     atomic.Value
	lastQuery    atomic.Value
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lastAuth.Store(r.Header.Get("Authorization"))
	f.lastQuery.Store(r.URL.RawQuery)
	switch {
	case strings.HasSuffix(r.URL.Path, "/releases"):
		f.releaseCalls.Add(1)
		if f.releases != nil {
			f.releases(w, r)
			return
		}
	case strings.HasSuffix(r.URL.Path, "/tags"):
		f.tagCalls.Add(1)
		if f.tags != nil {
			f.tags(w, r)
			return
		}
	}
	writeJSON(w, http.StatusOK, `[]`)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func body(status int, s string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { writeJSON(w, status, s) }
}

func newTestGitHub(t *testing.T, f *fakeGitHub, filter string) *GitHub {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	flt, err := CompileFilter(filter)
	require.NoError(t, err)
	g, err := NewGitHub(GitHubConfig{Token: "tok", BaseURL: srv.URL, Filter: flt}, testLogger())
	require.NoError(t, err)
	return g
}

var repo = watch.Entity{Owner: "o", Name: "r"}

func TestResolvePrefersRelease(t *testing.T) {
	t.Parallel()
	f := &fakeGitHub{releases: body(200, `[{"tag_name":"v1.2.0","html_url":"https://github.com/o/r/releases/tag/v1.2.0","prerelease":true}]`)}
	g := newTestGitHub(t, f, "")

	obs, err := g.Resolve(context.Background(), repo)
	require.NoError(t, err)
	require.Equal(t, watch.Observation{ID: "v1.2.0", Source: watch.SourceRelease, URL: "https://github.com/o/r/releases/tag/v1.2.0", Prerelease: true}, obs)
	require.EqualValues(t, 0, f.tagCalls.Load())
	require.Equal(t, "Bearer tok", f.lastAuth.Load())
	require.Contains(t, f.lastQuery.Load(), "per_page=10")
}

func TestResolveFallsBackToTagsOnlyWithoutReleases(t *testing.T) {
	t.Parallel()
	f := &fakeGitHub{tags: body(200, `[{"name":"2024.05.01"}]`)}
	g := newTestGitHub(t, f, "")

	obs, err := g.Resolve(context.Background(), repo)
	require.NoError(t, err)
	require.Equal(t, watch.Observation{ID: "2024.05.01", Source: watch.SourceTag}, obs)
	require.EqualValues(t, 1, f.releaseCalls.Load())
	require.EqualValues(t, 1, f.tagCalls.Load())
}

func TestResolveSkipsDrafts(t *testing.T) {
	t.Parallel()
	f := &fakeGitHub{
		releases: body(200, `[{"tag_name":"v9","draft":true}]`),
		tags:     body(200, `[{"name":"v8"}]`),
	}
	obs, err := newTestGitHub(t, f, "").Resolve(context.Background(), repo)
	require.NoError(t, err)
	require.Equal(t, "v8", obs.ID)
}

// paged serves a JSON array truncated to the request's per_page, as GitHub does.
func paged(items ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.URL.Query().Get("per_page"))
		if err != nil || n > len(items) {
			n = len(items)
		}
		writeJSON(w, http.StatusOK, "["+strings.Join(items[:n], ",")+"]")
	}
}

func TestResolveDraftAheadOfPublishedRelease(t *testing.T) {
	t.Parallel()
	f := &fakeGitHub{
		releases: paged(`{"tag_name":"v9","draft":true}`, `{"tag_name":"v8"}`),
		tags:     paged(`{"name":"nightly"}`),
	}
	obs, err := newTestGitHub(t, f, "").Resolve(context.Background(), repo)
	require.NoError(t, err)
	require.Equal(t, "v8", obs.ID)
	require.Equal(t, watch.SourceRelease, obs.Source)
	require.EqualValues(t, 0, f.tagCalls.Load())
}

func TestResolveNothingYet(t *testing.T) {
	t.Parallel()
	obs, err := newTestGitHub(t, &fakeGitHub{}, "").Resolve(context.Background(), repo)
	require.NoError(t, err)
	require.True(t, obs.Empty())
}

func TestResolveReleaseErrorDoesNotFallBack(t *testing.T) {
	t.Parallel()
	f := &fakeGitHub{releases: body(500, `{"message":"boom"}`), tags: body(200, `[{"name":"v1"}]`)}
	_, err := newTestGitHub(t, f, "").Resolve(context.Background(), repo)
	require.ErrorIs(t, err, ErrTransport)
	require.EqualValues(t, 0, f.tagCalls.Load())

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, repo, rerr.Entity)
}

func TestResolveErrorKinds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{name: "not found", handler: body(404, `{"message":"Not Found"}`), want: ErrNotFound},
		{name: "too many requests", handler: body(429, `{"message":"slow down"}`), want: ErrRateLimited},
		{
			name: "rate limit exhausted",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("X-RateLimit-Limit", "60")
				w.Header().Set("X-RateLimit-Remaining", "0")
				writeJSON(w, 403, `{"message":"API rate limit exceeded"}`)
			},
			want: ErrRateLimited,
		},
		{name: "malformed", handler: body(200, `{not json`), want: ErrMalformed},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := newTestGitHub(t, &fakeGitHub{releases: tt.handler}, "").Resolve(context.Background(), repo)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolveTimeout(t *testing.T) {
	t.Parallel()
	f := &fakeGitHub{releases: func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		writeJSON(w, 200, `[]`)
	}}
	g := newTestGitHub(t, f, "")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := g.Resolve(ctx, repo)
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, "timeout", KindName(err))
}

func TestResolveWithFilter(t *testing.T) {
	t.Parallel()
	f := &fakeGitHub{releases: body(200, `[
		{"tag_name":"v2.0.0-rc1","prerelease":true},
		{"tag_name":"v1.9.0","html_url":"https://example/v1.9.0"}
	]`)}
	g := newTestGitHub(t, f, `!prerelease && repo == "o/r"`)

	obs, err := g.Resolve(context.Background(), repo)
	require.NoError(t, err)
	require.Equal(t, "v1.9.0", obs.ID)
	require.Contains(t, f.lastQuery.Load(), "per_page=30")
}

func TestFilterCompile(t *testing.T) {
	t.Parallel()
	f, err := CompileFilter("  ")
	require.NoError(t, err)
	require.Nil(t, f)
	ok, err := f.Accept(Candidate{Tag: "x"})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = CompileFilter(`tag +`)
	require.Error(t, err)

	_, err = CompileFilter(`tag`)
	require.Error(t, err, "non-boolean expressions are rejected")

	f, err = CompileFilter(`tag startsWith "v" && source == "tag"`)
	require.NoError(t, err)
	ok, err = f.Accept(Candidate{Tag: "v1", Source: watch.SourceTag})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.Accept(Candidate{Tag: "nightly", Source: watch.SourceTag})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPreferReleaseThenTag(t *testing.T) {
	t.Parallel()
	rel := func(id string, err error) func(context.Context, watch.Entity) (watch.Observation, error) {
		return func(context.Context, watch.Entity) (watch.Observation, error) {
			return watch.Observation{ID: id}, err
		}
	}
	obs, err := PreferReleaseThenTag(context.Background(), repo, rel("r1", nil), rel("t1", nil))
	require.NoError(t, err)
	require.Equal(t, "r1", obs.ID)

	obs, err = PreferReleaseThenTag(context.Background(), repo, rel("", nil), rel("t1", nil))
	require.NoError(t, err)
	require.Equal(t, "t1", obs.ID)

	_, err = PreferReleaseThenTag(context.Background(), repo, rel("", ErrTransport), rel("t1", nil))
	require.ErrorIs(t, err, ErrTransport)
}
