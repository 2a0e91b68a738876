package activitypub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/require"

	"github.com/sitepub/sitepub/internal/httpx"
	"github.com/sitepub/sitepub/models"
)

func TestActorShow(t *testing.T) {
	t.Run("activitypub", func(t *testing.T) {
		require := require.New(t)
		env := setupEnv(t)

		req := httptest.NewRequest("GET", env.Site.ActorURI(), nil)
		req.Header.Set("Accept", "application/activity+json")
		rec := httptest.NewRecorder()
		require.NoError(ActorShow(env, rec, req))
		require.Equal(http.StatusOK, rec.Code)
		require.Contains(rec.Header().Get("Content-Type"), "application/ld+json")

		var doc map[string]any
		require.NoError(json.Unmarshal(rec.Body.Bytes(), &doc))
		require.Equal(env.Site.ActorURI(), doc["id"])
		require.Equal("Person", doc["type"])
		require.Equal("me", doc["preferredUsername"])
		require.Equal(env.Site.InboxURI(), doc["inbox"])
		require.Equal(env.Site.OutboxURI(), doc["outbox"])
		require.Equal(env.Site.FollowersURI(), doc["followers"])

		key := doc["publicKey"].(map[string]any)
		require.Equal(env.Site.ActorURI()+"#main-key", key["id"])
		require.Equal(env.Site.ActorURI(), key["owner"])
		require.Contains(key["publicKeyPem"], "BEGIN PUBLIC KEY")
	})

	t.Run("browser is redirected", func(t *testing.T) {
		require := require.New(t)
		env := setupEnv(t)

		req := httptest.NewRequest("GET", env.Site.ActorURI(), nil)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		rec := httptest.NewRecorder()
		require.NoError(ActorShow(env, rec, req))
		require.Equal(http.StatusFound, rec.Code)
		require.Equal(env.Site.Profile(), rec.Header().Get("Location"))
	})
}

func TestUnknownUsername(t *testing.T) {
	require := require.New(t)
	env := setupEnv(t)

	withUser := func(req *http.Request, username string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("username", username)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	// only the local actor lives under /@; any other username is not found
	req := httptest.NewRequest("GET", "https://example.com/@stranger", nil)
	req.Header.Set("Accept", "application/activity+json")
	err := ActorShow(env, httptest.NewRecorder(), withUser(req, "stranger"))
	se := new(httpx.StatusError)
	require.ErrorAs(err, &se)
	require.Equal(http.StatusNotFound, se.Status())

	// the inbox is guarded the same way
	remote := newRemoteActor(t)
	body := followBody(t, remote, remote.URL+"/follows/1", env.Site.ActorURI())
	err = InboxCreate(env, httptest.NewRecorder(), withUser(remote.signedRequest(t, env, body), "stranger"))
	require.ErrorAs(err, &se)
	require.Equal(http.StatusNotFound, se.Status())

	// the local username passes through
	req = httptest.NewRequest("GET", env.Site.ActorURI(), nil)
	req.Header.Set("Accept", "application/activity+json")
	require.NoError(ActorShow(env, httptest.NewRecorder(), withUser(req, env.Site.Username)))
}

func TestArticleShow(t *testing.T) {
	env := setupEnv(t)
	writeTestEntry(t, env, "blog/hello.md", `---
title: Hello
createdAt: 2023-01-01T00:00:00Z
---
hello world
`)

	get := func(t *testing.T, target, accept string) (*httptest.ResponseRecorder, error) {
		t.Helper()
		req := httptest.NewRequest("GET", target, nil)
		req.Header.Set("Accept", accept)
		rec := httptest.NewRecorder()
		return rec, ArticleShow(env, rec, req)
	}

	t.Run("article", func(t *testing.T) {
		require := require.New(t)
		rec, err := get(t, "https://example.com/blog/hello", "application/activity+json")
		require.NoError(err)
		var doc map[string]any
		require.NoError(json.Unmarshal(rec.Body.Bytes(), &doc))
		require.Equal("Article", doc["type"])
		require.Equal("https://blog.example.com/hello", doc["id"])
	})

	t.Run("activity", func(t *testing.T) {
		require := require.New(t)
		rec, err := get(t, "https://example.com/blog/hello/activity", "application/activity+json")
		require.NoError(err)
		var doc map[string]any
		require.NoError(json.Unmarshal(rec.Body.Bytes(), &doc))
		require.Equal("Create", doc["type"])
		require.Equal("https://blog.example.com/hello/activity", doc["id"])
	})

	t.Run("alternate host drops the prefix", func(t *testing.T) {
		require := require.New(t)
		rec, err := get(t, "https://blog.example.com/hello", "application/activity+json")
		require.NoError(err)
		var doc map[string]any
		require.NoError(json.Unmarshal(rec.Body.Bytes(), &doc))
		require.Equal("https://blog.example.com/hello", doc["id"])
	})

	t.Run("missing entry", func(t *testing.T) {
		require := require.New(t)
		_, err := get(t, "https://example.com/blog/missing", "application/activity+json")
		se := new(httpx.StatusError)
		require.ErrorAs(err, &se)
		require.Equal(http.StatusNotFound, se.Status())
	})

	t.Run("html request is not ours", func(t *testing.T) {
		require := require.New(t)
		_, err := get(t, "https://example.com/blog/hello", "text/html")
		se := new(httpx.StatusError)
		require.ErrorAs(err, &se)
		require.Equal(http.StatusNotAcceptable, se.Status())
	})
}

func TestOutbox(t *testing.T) {
	require := require.New(t)
	env := setupEnv(t)
	writeTestEntry(t, env, "blog/a.md", "---\ntitle: A\ncreatedAt: 2023-01-01T00:00:00Z\n---\na\n")
	writeTestEntry(t, env, "blog/b.md", "---\ntitle: B\ncreatedAt: 2023-02-01T00:00:00Z\n---\nb\n")
	writeTestEntry(t, env, "notes/c.md", "---\ntitle: C\ncreatedAt: 2023-03-01T00:00:00Z\n---\nc\n")

	rec := httptest.NewRecorder()
	require.NoError(Outbox(env, rec, httptest.NewRequest("GET", env.Site.OutboxURI(), nil)))

	var resp struct {
		ID           string           `json:"id"`
		Type         string           `json:"type"`
		TotalItems   int              `json:"totalItems"`
		OrderedItems []map[string]any `json:"orderedItems"`
	}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(env.Site.OutboxURI(), resp.ID)
	require.Equal("OrderedCollection", resp.Type)
	require.Equal(3, resp.TotalItems)
	require.Len(resp.OrderedItems, 3)
	require.Equal("https://example.com/notes/c/activity", resp.OrderedItems[0]["id"])

	// limit and offset page through the collection
	rec = httptest.NewRecorder()
	require.NoError(Outbox(env, rec, httptest.NewRequest("GET", env.Site.OutboxURI()+"?limit=2&offset=2", nil)))
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(3, resp.TotalItems)
	require.Len(resp.OrderedItems, 1)
	require.Equal("https://blog.example.com/a/activity", resp.OrderedItems[0]["id"])
}

func TestFollowersAndFollowingIndex(t *testing.T) {
	require := require.New(t)
	env := setupEnv(t)
	remote := newRemoteActor(t)

	follower := acceptedFollower(t, env, remote)
	require.NoError(models.NewFollowings(env.DB).Request("https://elsewhere.example/users/bob", "x"))

	rec := httptest.NewRecorder()
	require.NoError(FollowersIndex(env, rec, httptest.NewRequest("GET", env.Site.FollowersURI(), nil)))
	var resp struct {
		TotalItems   int      `json:"totalItems"`
		OrderedItems []string `json:"orderedItems"`
	}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(1, resp.TotalItems)
	require.Equal([]string{follower.ActorURI}, resp.OrderedItems)

	// requested relations are not visible until accepted
	rec = httptest.NewRecorder()
	require.NoError(FollowingIndex(env, rec, httptest.NewRequest("GET", env.Site.FollowingURI(), nil)))
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(0, resp.TotalItems)
	require.Empty(resp.OrderedItems)

	require.NoError(models.NewFollowings(env.DB).MarkAccepted("https://elsewhere.example/users/bob"))
	rec = httptest.NewRecorder()
	require.NoError(FollowingIndex(env, rec, httptest.NewRequest("GET", env.Site.FollowingURI(), nil)))
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(1, resp.TotalItems)
	require.Equal([]string{"https://elsewhere.example/users/bob"}, resp.OrderedItems)
}
