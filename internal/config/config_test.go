package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(os.WriteFile(path, []byte(`
domain: example.com
username: me
displayName: Example
summary: a website
contentDir: /srv/content
collections:
  - name: blog
    prefix: /blog
    host: blog.example.com
  - name: notes
    prefix: /notes
`), 0o644))

	site, err := Load(path)
	require.NoError(err)
	require.Equal("example.com", site.Domain)
	require.Equal("https://example.com/@me", site.ActorURI())
	require.Equal("https://example.com/@me/inbox", site.InboxURI())
	require.Equal("acct:me@example.com", site.Acct())
	require.Len(site.Collections, 2)

	c, ok := site.CollectionFor("/blog/some-post")
	require.True(ok)
	require.Equal("blog", c.Name)
	require.Equal("blog.example.com", c.Host)

	_, ok = site.CollectionFor("/about")
	require.False(ok)

	c, ok = site.Collection("notes")
	require.True(ok)
	require.Equal("/notes", c.Prefix)
}

func TestLoadValidation(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(os.WriteFile(path, []byte("username: me\n"), 0o644))
	_, err := Load(path)
	require.Error(err)

	require.NoError(os.WriteFile(path, []byte(`
domain: example.com
username: me
collections:
  - name: blog
    prefix: blog
`), 0o644))
	_, err = Load(path)
	require.Error(err)
}

func TestEnvOverride(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(os.WriteFile(path, []byte("domain: example.com\nusername: me\n"), 0o644))
	t.Setenv("SITEPUB_DOMAIN", "override.example")
	site, err := Load(path)
	require.NoError(err)
	require.Equal("override.example", site.Domain)
}
