package activitypub

import (
	"bytes"
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"

	"github.com/carlmjohnson/requests"

	"github.com/sitepub/sitepub/internal/crypto"
	"github.com/sitepub/sitepub/internal/httpsig"
	"github.com/sitepub/sitepub/models"
)

// Client fetches and posts ActivityPub resources, signing every request
// with the local actor's key.
type Client struct {
	keyID      string
	privateKey *rsa.PrivateKey
}

// NewClient returns a client signing as the given actor.
func NewClient(signAs *models.Actor) (*Client, error) {
	_, privateKey, err := crypto.ParseRSAPrivateKey(signAs.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &Client{
		keyID:      signAs.PublicKeyID(),
		privateKey: privateKey,
	}, nil
}

// Fetch fetches the ActivityPub resource at the given URL and decodes it into the given object.
func (c *Client) Fetch(ctx context.Context, uri string, obj interface{}) error {
	return requests.URL(uri).
		Accept(`application/ld+json; profile="https://www.w3.org/ns/activitystreams"`).
		Transport(c).
		CheckContentType("application/ld+json", "application/activity+json", "application/json").
		CheckStatus(http.StatusOK).
		ToJSON(obj).
		Fetch(ctx)
}

// Post posts the given ActivityPub object to the given URL.
func (c *Client) Post(ctx context.Context, url string, obj map[string]any) error {
	return requests.URL(url).
		Header("Content-Type", `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`).
		BodyJSON(obj).
		Transport(c).
		CheckStatus(http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent).
		Fetch(ctx)
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		if body, err = io.ReadAll(req.Body); err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	if err := httpsig.Sign(req, c.keyID, c.privateKey, body); err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	return http.DefaultTransport.RoundTrip(req)
}
