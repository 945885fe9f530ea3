package ingress

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/hookbench/hookbench/internal/domain"
)

// Provider names as recorded on webhook events.
const (
	ProviderStripe  = "stripe"
	ProviderGitHub  = "github"
	ProviderShopify = "shopify"
	ProviderSvix    = "svix"
	ProviderGeneric = "generic"
)

// detectProvider recognizes a webhook's origin by its signature header
// shape. Unrecognized deliveries are still accepted as generic.
func detectProvider(headers map[string]string) string {
	switch {
	case headers["Stripe-Signature"] != "":
		return ProviderStripe
	case headers["X-Hub-Signature-256"] != "":
		return ProviderGitHub
	case headers["X-Shopify-Hmac-Sha256"] != "":
		return ProviderShopify
	case headers["Webhook-Signature"] != "" && headers["Webhook-Id"] != "":
		return ProviderSvix
	default:
		return ProviderGeneric
	}
}

// verify checks the provider's signature against the session secret and
// returns a three-valued outcome: signatures that cannot be checked
// (unknown provider, malformed header) yield VerifiedUnknown, and the
// delivery is recorded either way.
func verify(provider string, headers map[string]string, body []byte, secret string) string {
	switch provider {
	case ProviderStripe:
		return verifyStripe(headers["Stripe-Signature"], body, secret)
	case ProviderGitHub:
		return verifyGitHub(headers["X-Hub-Signature-256"], body, secret)
	case ProviderShopify:
		return verifyShopify(headers["X-Shopify-Hmac-Sha256"], body, secret)
	case ProviderSvix:
		return verifySvix(headers["Webhook-Id"], headers["Webhook-Timestamp"], headers["Webhook-Signature"], body, secret)
	default:
		return domain.VerifiedUnknown
	}
}

// verifyStripe checks the "t=<ts>,v1=<hex>" scheme: the signed payload
// is "<ts>.<body>".
func verifyStripe(header string, body []byte, secret string) string {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return domain.VerifiedFalse
	}

	expected := hmacSHA256([]byte(secret), []byte(ts+"."), body)
	for _, sig := range sigs {
		if got, err := hex.DecodeString(sig); err == nil && safeEqual(got, expected) {
			return domain.VerifiedTrue
		}
	}
	return domain.VerifiedFalse
}

// verifyGitHub checks the "sha256=<hex>" scheme over the raw body.
func verifyGitHub(header string, body []byte, secret string) string {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return domain.VerifiedFalse
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return domain.VerifiedFalse
	}
	if safeEqual(got, hmacSHA256([]byte(secret), nil, body)) {
		return domain.VerifiedTrue
	}
	return domain.VerifiedFalse
}

// verifyShopify checks the base64-encoded HMAC over the raw body.
func verifyShopify(header string, body []byte, secret string) string {
	got, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return domain.VerifiedFalse
	}
	if safeEqual(got, hmacSHA256([]byte(secret), nil, body)) {
		return domain.VerifiedTrue
	}
	return domain.VerifiedFalse
}

// verifySvix checks the standard-webhooks scheme: the signed content is
// "<id>.<timestamp>.<body>" and the header may carry several
// space-separated "v1,<base64>" signatures.
func verifySvix(id, ts, header string, body []byte, secret string) string {
	if id == "" || ts == "" {
		return domain.VerifiedFalse
	}
	expected := hmacSHA256([]byte(secret), []byte(id+"."+ts+"."), body)
	for _, part := range strings.Fields(header) {
		version, sig, ok := strings.Cut(part, ",")
		if !ok || version != "v1" {
			continue
		}
		if got, err := base64.StdEncoding.DecodeString(sig); err == nil && safeEqual(got, expected) {
			return domain.VerifiedTrue
		}
	}
	return domain.VerifiedFalse
}

func hmacSHA256(key, prefix, body []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(prefix)
	mac.Write(body)
	return mac.Sum(nil)
}

func safeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// deliveryKey returns the provider's delivery identifier when one
// exists, falling back to a body digest so retried identical payloads
// from id-less providers still collapse.
func deliveryKey(provider string, headers map[string]string, body []byte) string {
	switch provider {
	case ProviderGitHub:
		if id := headers["X-Github-Delivery"]; id != "" {
			return "github:" + id
		}
	case ProviderShopify:
		if id := headers["X-Shopify-Webhook-Id"]; id != "" {
			return "shopify:" + id
		}
	case ProviderSvix:
		if id := headers["Webhook-Id"]; id != "" {
			return "svix:" + id
		}
	}
	sum := sha256.Sum256(body)
	return "body:" + hex.EncodeToString(sum[:])
}
