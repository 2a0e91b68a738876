// Package config holds the immutable site configuration loaded at process
// start. There is exactly one local actor per deployment; everything about
// its identity lives here, not in mutable state.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Site describes the local actor and the content collections it federates.
type Site struct {
	// Domain is the public hostname the actor lives on, eg. "example.com".
	Domain string `yaml:"domain"`
	// Username is the actor's preferred username. The actor document is
	// served from https://<domain>/@<username>.
	Username    string `yaml:"username"`
	DisplayName string `yaml:"displayName"`
	Summary     string `yaml:"summary"`
	// ProfileURL is where browsers are redirected when they ask for the
	// actor with an HTML Accept header. Defaults to the site root.
	ProfileURL string `yaml:"profileURL"`
	// ContentDir is the root directory of the content store.
	ContentDir string `yaml:"contentDir"`
	// Collections are the federated content collections, in the order they
	// appear in the outbox.
	Collections []Collection `yaml:"collections"`
}

// Collection maps a content collection onto its public URL space.
type Collection struct {
	// Name of the collection, eg. "blog".
	Name string `yaml:"name"`
	// Prefix is the content path prefix, eg. "/blog".
	Prefix string `yaml:"prefix"`
	// Host, if set, remaps the collection to an alternate public hostname:
	// /blog/post becomes https://<host>/post.
	Host string `yaml:"host"`
}

// Load reads the site file at path and applies SITEPUB_* environment
// overrides.
func Load(path string) (*Site, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site file: %w", err)
	}
	var site Site
	if err := yaml.Unmarshal(buf, &site); err != nil {
		return nil, fmt.Errorf("parse site file: %w", err)
	}
	if v := os.Getenv("SITEPUB_DOMAIN"); v != "" {
		site.Domain = v
	}
	if v := os.Getenv("SITEPUB_USERNAME"); v != "" {
		site.Username = v
	}
	if v := os.Getenv("SITEPUB_CONTENT_DIR"); v != "" {
		site.ContentDir = v
	}
	return &site, site.validate()
}

func (s *Site) validate() error {
	if s.Domain == "" {
		return fmt.Errorf("site: domain is required")
	}
	if s.Username == "" {
		return fmt.Errorf("site: username is required")
	}
	for i, c := range s.Collections {
		if c.Name == "" || c.Prefix == "" {
			return fmt.Errorf("site: collection %d needs both name and prefix", i)
		}
		if !strings.HasPrefix(c.Prefix, "/") {
			return fmt.Errorf("site: collection %q prefix must start with /", c.Name)
		}
	}
	return nil
}

// Origin returns the https origin of the site, without a trailing slash.
func (s *Site) Origin() string {
	return "https://" + s.Domain
}

// ActorURI returns the IRI of the local actor document.
func (s *Site) ActorURI() string {
	return s.Origin() + "/@" + s.Username
}

// InboxURI returns the IRI of the local actor's inbox.
func (s *Site) InboxURI() string { return s.ActorURI() + "/inbox" }

// OutboxURI returns the IRI of the local actor's outbox.
func (s *Site) OutboxURI() string { return s.ActorURI() + "/outbox" }

// FollowersURI returns the IRI of the local actor's followers collection.
func (s *Site) FollowersURI() string { return s.ActorURI() + "/followers" }

// FollowingURI returns the IRI of the local actor's following collection.
func (s *Site) FollowingURI() string { return s.ActorURI() + "/following" }

// Acct returns the acct: subject for the local actor.
func (s *Site) Acct() string {
	return "acct:" + s.Username + "@" + s.Domain
}

// Profile returns the HTML profile URL browsers are redirected to.
func (s *Site) Profile() string {
	if s.ProfileURL != "" {
		return s.ProfileURL
	}
	return s.Origin() + "/"
}

// CollectionFor returns the collection whose prefix contains path.
func (s *Site) CollectionFor(path string) (Collection, bool) {
	for _, c := range s.Collections {
		if path == c.Prefix || strings.HasPrefix(path, c.Prefix+"/") {
			return c, true
		}
	}
	return Collection{}, false
}

// CollectionNames returns the names of all federated collections.
func (s *Site) CollectionNames() []string {
	names := make([]string, 0, len(s.Collections))
	for _, c := range s.Collections {
		names = append(names, c.Name)
	}
	return names
}

// Collection returns the named collection.
func (s *Site) Collection(name string) (Collection, bool) {
	for _, c := range s.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}
