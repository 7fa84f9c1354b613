package payos

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotConfigured    = errors.New("payos: checksum key not configured")
	ErrMissingSignature = errors.New("payos: missing signature")
	ErrInvalidSignature = errors.New("payos: invalid signature")
)

// Signer computes and checks HMAC-SHA256 signatures keyed by the PayOS checksum key.
type Signer struct {
	key []byte
}

func NewSigner(checksumKey string) *Signer {
	return &Signer{key: []byte(checksumKey)}
}

func (s *Signer) Configured() bool { return s != nil && len(s.key) > 0 }

// Sign returns the lowercase hex HMAC of msg.
func (s *Signer) Sign(msg []byte) string {
	h := hmac.New(sha256.New, s.key)
	h.Write(msg)
	return hex.EncodeToString(h.Sum(nil))
}

// SignFields signs the sorted key=value&... rendering of fields.
func (s *Signer) SignFields(fields map[string]any) string {
	return s.Sign([]byte(SortedQuery(fields)))
}

// SignPaymentRequest builds the signature PayOS expects on POST /v2/payment-requests.
func (s *Signer) SignPaymentRequest(amount int64, cancelURL, description string, orderCode int64, returnURL string) string {
	msg := fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		amount, cancelURL, description, orderCode, returnURL)
	return s.Sign([]byte(msg))
}

func (s *Signer) equal(sig string, msg []byte) bool {
	got, err := hex.DecodeString(strings.TrimSpace(sig))
	if err != nil || len(got) == 0 {
		return false
	}
	h := hmac.New(sha256.New, s.key)
	h.Write(msg)
	return hmac.Equal(got, h.Sum(nil))
}

// VerifyBody checks an X-Signature header against the raw body, then
// against its canonical JSON re-encoding (sorted keys, no whitespace).
func (s *Signer) VerifyBody(body []byte, sig string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if sig == "" {
		return ErrMissingSignature
	}
	if s.equal(sig, body) {
		return nil
	}
	if canon, err := canonicalJSON(body); err == nil && s.equal(sig, canon) {
		return nil
	}
	return ErrInvalidSignature
}

// VerifyFields checks a body-embedded signature over fields.
func (s *Signer) VerifyFields(fields map[string]any, sig string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if sig == "" {
		return ErrMissingSignature
	}
	if !s.equal(sig, []byte(SortedQuery(fields))) {
		return ErrInvalidSignature
	}
	return nil
}

// Verify authenticates a parsed webhook. The header wins when present,
// otherwise the payload's own signature field is checked.
func (s *Signer) Verify(p Payload, body []byte, header string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if header != "" {
		return s.VerifyBody(body, header)
	}
	return s.VerifyFields(p.signedFields(), p.bodySignature())
}

// SortedQuery renders fields as key=value pairs joined by & in key order.
// Null becomes the empty string; objects and arrays are JSON encoded.
func SortedQuery(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(queryValue(fields[k]))
	}
	return b.String()
}

func queryValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		if t == "null" || t == "undefined" {
			return ""
		}
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case map[string]any, []any:
		out, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(out)
	default:
		return fmt.Sprint(t)
	}
}

func canonicalJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
