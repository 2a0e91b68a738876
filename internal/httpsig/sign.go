// Package httpsig implements the HTTP Signature scheme as defined in draft-cavage-http-signatures-10.
package httpsig

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// RequestTarget is the pseudo-header used to sign the request target.
	RequestTarget = "(request-target)"

	// MaxDateSkew is how far a request's Date header may drift from the
	// local clock before the request is rejected as a possible replay.
	MaxDateSkew = 300 * time.Second
)

// Sign signs the request using the given keyID and privateKey.
// For POST requests the body is hashed into a Digest header which is
// bound into the signed header set.
func Sign(req *http.Request, keyID string, privateKey crypto.PrivateKey, body []byte) error {
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	headersToSign := []string{
		RequestTarget,
		"host",
		"date",
	}
	switch req.Method {
	case "GET":
		headersToSign = append(headersToSign, "accept")
	case "POST":
		headersToSign = append(headersToSign, "digest")
		addDigest(req, body)
	}

	payload := signatureString(req, headersToSign)
	hash := sha256.Sum256(payload)

	sig, err := rsa.SignPKCS1v15(rand.Reader, privateKey.(*rsa.PrivateKey), crypto.SHA256, hash[:])
	if err != nil {
		return err
	}
	enc := base64.StdEncoding.EncodeToString(sig)
	req.Header.Set("Signature", fmt.Sprintf(`keyId="%s",algorithm="rsa-sha256",headers="%s",signature="%s"`, keyID, strings.Join(headersToSign, " "), enc))
	return nil
}

// signatureString builds the newline-joined signing payload from the headers
// actually present on the request. Header values absent from the request sign
// as empty strings; nothing is taken on trust from the caller.
func signatureString(req *http.Request, headers []string) []byte {
	var sb bytes.Buffer
	for i, header := range headers {
		if i > 0 {
			sb.WriteString("\n")
		}
		header = strings.ToLower(strings.TrimSpace(header))
		switch header {
		case RequestTarget:
			sb.WriteString("(request-target): ")
			sb.WriteString(strings.ToLower(req.Method))
			sb.WriteString(" ")
			sb.WriteString(req.URL.Path)
			if req.URL.RawQuery != "" {
				sb.WriteString("?")
				sb.WriteString(req.URL.RawQuery)
			}
		case "host":
			sb.WriteString("host: ")
			host := req.Host
			if host == "" {
				host = req.URL.Host
			}
			sb.WriteString(host)
		default:
			sb.WriteString(header)
			sb.WriteString(": ")
			sb.WriteString(req.Header.Get(header))
		}
	}
	return sb.Bytes()
}

func addDigest(req *http.Request, body []byte) {
	req.Header.Set("Digest", Digest(body))
}

// Digest returns the Digest header value for the given request body.
func Digest(body []byte) string {
	hash := sha256.Sum256(body)
	return fmt.Sprintf("SHA-256=%s", base64.StdEncoding.EncodeToString(hash[:]))
}
