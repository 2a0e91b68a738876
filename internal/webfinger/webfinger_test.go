package webfinger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcctParse(t *testing.T) {
	tc := []struct {
		in     string
		expect Acct
	}{
		{"acct:foo@bar.com", Acct{User: "foo", Host: "bar.com"}},
		{"@foo@bar.com", Acct{User: "foo", Host: "bar.com"}},
		{"foo@bar.com", Acct{User: "foo", Host: "bar.com"}},
		{"acct%3Afoo%40bar.com", Acct{User: "foo", Host: "bar.com"}},
	}
	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			req := require.New(t)
			got, err := Parse(tt.in)
			req.NoError(err)
			req.Equal(tt.expect, *got)
			req.Equal("acct:foo@bar.com", got.String())
		})
	}
}

func TestAcctURLs(t *testing.T) {
	require := require.New(t)
	a := Acct{User: "me", Host: "example.com"}
	require.Equal("https://example.com/@me", a.ID())
	require.Equal("https://example.com/@me/inbox", a.Inbox())
	require.Equal("https://example.com/@me/outbox", a.Outbox())
	require.Equal("https://example.com/@me/followers", a.Followers())
	require.Equal("https://example.com/@me/following", a.Following())
	require.Equal("https://example.com/.well-known/webfinger?resource=acct%3Ame%40example.com", a.Webfinger())
}
