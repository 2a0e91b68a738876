package httpsig

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrMissingSignature is returned when the request carries no Signature header.
	ErrMissingSignature = errors.New("Signature header is missing")

	// ErrDateSkew is returned when the request's Date header is missing,
	// unparseable, or outside the replay window.
	ErrDateSkew = errors.New("Date header outside allowed window")

	// ErrDigestMismatch is returned when the Digest header is not covered
	// by the signature or does not match the request body.
	ErrDigestMismatch = errors.New("Digest header does not match request body")
)

// Signature is the parsed form of a Signature header.
type Signature struct {
	KeyID     string
	Algorithm string
	Headers   []string
	Signature []byte
}

// ParseSignature parses the Signature header of the request.
func ParseSignature(req *http.Request) (*Signature, error) {
	header := req.Header.Get("Signature")
	if header == "" {
		return nil, ErrMissingSignature
	}
	var sig Signature
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("malformed signature part: %q", part)
		}
		v = strings.Trim(v, "\"")
		switch k {
		case "keyId":
			sig.KeyID = v
		case "algorithm":
			sig.Algorithm = v
		case "headers":
			sig.Headers = strings.Fields(v)
		case "signature":
			raw, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, fmt.Errorf("malformed signature value: %w", err)
			}
			sig.Signature = raw
		default:
			// created, expires, and friends; not used by this scheme.
		}
	}
	if sig.KeyID == "" || len(sig.Signature) == 0 {
		return nil, fmt.Errorf("incomplete signature header: %q", header)
	}
	if len(sig.Headers) == 0 {
		sig.Headers = []string{"date"}
	}
	return &sig, nil
}

// Verify verifies the signature of the request. keyFn resolves the keyId
// named in the Signature header to a public key. The signing payload is
// reconstructed from the headers present on the wire, never from values the
// sender merely claims to have signed, and for POST requests the Digest
// header is recomputed over the body actually received.
func Verify(req *http.Request, keyFn func(keyID string) (crypto.PublicKey, error)) error {
	sig, err := ParseSignature(req)
	if err != nil {
		return err
	}

	if err := checkDate(req.Header.Get("Date")); err != nil {
		return err
	}

	if req.Method == "POST" {
		if err := checkDigest(req, sig.Headers); err != nil {
			return err
		}
	}

	pubKey, err := keyFn(sig.KeyID)
	if err != nil {
		return err
	}

	payload := signatureString(req, sig.Headers)
	hash := sha256.Sum256(payload)

	switch sig.Algorithm {
	case "rsa-sha256", "hs2019", "":
		// hs2019 senders negotiate the algorithm out of band; rsa-sha256
		// is the only one this server supports.
		return rsaVerify(pubKey, hash[:], sig.Signature)
	default:
		return fmt.Errorf("unknown algorithm: %s", sig.Algorithm)
	}
}

// checkDate enforces the replay window: the Date header must parse and must
// be within MaxDateSkew of the local clock, in either direction.
func checkDate(date string) error {
	if date == "" {
		return ErrDateSkew
	}
	t, err := http.ParseTime(date)
	if err != nil {
		return ErrDateSkew
	}
	skew := time.Since(t)
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxDateSkew {
		return ErrDateSkew
	}
	return nil
}

// checkDigest requires the digest header to be part of the signed set and
// to match a hash of the body as received. The body is restored for later
// readers.
func checkDigest(req *http.Request, signedHeaders []string) error {
	covered := false
	for _, header := range signedHeaders {
		if strings.EqualFold(strings.TrimSpace(header), "digest") {
			covered = true
			break
		}
	}
	if !covered {
		return ErrDigestMismatch
	}
	var body []byte
	if req.Body != nil {
		var err error
		if body, err = io.ReadAll(req.Body); err != nil {
			return err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	if req.Header.Get("Digest") != Digest(body) {
		return ErrDigestMismatch
	}
	return nil
}

func rsaVerify(pubKey crypto.PublicKey, digest, sig []byte) error {
	key, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("expected *rsa.PublicKey, got %T", pubKey)
	}
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest, sig)
}
