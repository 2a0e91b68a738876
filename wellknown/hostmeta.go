package wellknown

import (
	"io"
	"net/http"

	"github.com/sitepub/sitepub/activitypub"
)

// HostMeta serves the XRD document pointing resolvers at the
// webfinger endpoint for the configured domain.
func HostMeta(env *activitypub.Env, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/xrd+xml")
	_, err := io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
		<XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0">
		<Subject>`+env.Site.Domain+`</Subject>
		<Link rel="lrdd" template="https://`+env.Site.Domain+`/.well-known/webfinger?resource={uri}"/>
		</XRD>`)
	return err
}
