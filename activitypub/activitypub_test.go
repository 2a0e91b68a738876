package activitypub

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sitepub/sitepub/content"
	"github.com/sitepub/sitepub/internal/config"
	"github.com/sitepub/sitepub/internal/httpsig"
	"github.com/sitepub/sitepub/models"
)

func testSite(contentDir string) *config.Site {
	return &config.Site{
		Domain:      "example.com",
		Username:    "me",
		DisplayName: "Example",
		Summary:     "a website",
		ContentDir:  contentDir,
		Collections: []config.Collection{
			{Name: "blog", Prefix: "/blog", Host: "blog.example.com"},
			{Name: "notes", Prefix: "/notes"},
		},
	}
}

func setupEnv(t *testing.T) *Env {
	t.Helper()
	require := require.New(t)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	require.NoError(err)
	require.NoError(db.AutoMigrate(models.AllTables()...))

	site := testSite(t.TempDir())
	local, err := models.NewActors(db).CreateLocal(site.ActorURI(), site.Username, site.Domain, site.DisplayName, site.Summary)
	require.NoError(err)

	client, err := NewClient(local)
	require.NoError(err)

	store := content.NewDirStore(site.ContentDir, site.Collections)
	dispatcher := NewDispatcher(db, site, store, client)
	dispatcher.BacklogInitialDelay = time.Millisecond
	dispatcher.RetryDelay = time.Millisecond
	dispatcher.BetweenItems = time.Millisecond

	return &Env{
		DB:         db,
		Site:       site,
		Content:    store,
		Dispatcher: dispatcher,
	}
}

func writeTestEntry(t *testing.T, env *Env, name, body string) {
	t.Helper()
	path := filepath.Join(env.Site.ContentDir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// remoteActor is a remote federated actor behind an httptest server. It
// serves its own actor document and records everything posted to its
// inbox.
type remoteActor struct {
	*httptest.Server
	key *rsa.PrivateKey

	mu       sync.Mutex
	received []map[string]any
	failAll  bool
}

func newRemoteActor(t *testing.T) *remoteActor {
	t.Helper()
	require := require.New(t)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)

	actor := &remoteActor{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/users/alice", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/activity+json")
		json.MarshalFull(w, actor.document())
	})
	mux.HandleFunc("/users/alice/inbox", func(w http.ResponseWriter, r *http.Request) {
		actor.mu.Lock()
		defer actor.mu.Unlock()
		if actor.failAll {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		var body map[string]any
		if err := json.UnmarshalFull(r.Body, &body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		actor.received = append(actor.received, body)
		w.WriteHeader(http.StatusAccepted)
	})
	actor.Server = httptest.NewServer(mux)
	t.Cleanup(actor.Close)
	return actor
}

func (a *remoteActor) URI() string   { return a.URL + "/users/alice" }
func (a *remoteActor) Inbox() string { return a.URL + "/users/alice/inbox" }
func (a *remoteActor) KeyID() string { return a.URI() + "#main-key" }

func (a *remoteActor) document() map[string]any {
	return map[string]any{
		"@context":          []string{Context, SecurityContext},
		"id":                a.URI(),
		"type":              "Person",
		"preferredUsername": "alice",
		"inbox":             a.Inbox(),
		"outbox":            a.URL + "/users/alice/outbox",
		"publicKey": map[string]any{
			"id":           a.KeyID(),
			"owner":        a.URI(),
			"publicKeyPem": publicPem(a.key),
		},
	}
}

func publicPem(key *rsa.PrivateKey) string {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		panic(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// inboxed returns a copy of everything posted to the actor's inbox.
func (a *remoteActor) inboxed() []map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]map[string]any(nil), a.received...)
}

func (a *remoteActor) inboxedOfType(typ string) []map[string]any {
	var matched []map[string]any
	for _, activity := range a.inboxed() {
		if stringFromAny(activity["type"]) == typ {
			matched = append(matched, activity)
		}
	}
	return matched
}

// signedRequest builds a request to the local inbox signed with the
// remote actor's key.
func (a *remoteActor) signedRequest(t *testing.T, env *Env, body []byte) *http.Request {
	t.Helper()
	req := newInboxRequest(t, env, body)
	require.NoError(t, httpsig.Sign(req, a.KeyID(), a.key, body))
	return req
}

func newInboxRequest(t *testing.T, env *Env, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest("POST", env.Site.InboxURI(), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/activity+json")
	return req
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	buf, err := json.Marshal(v)
	require.NoError(t, err)
	return buf
}
