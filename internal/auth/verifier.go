// Package auth verifies bearer tokens and extracts tenant/role claims.
package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"fleetopt/internal/config"
)

// Verifier validates JWTs in one of three modes:
// dev (token is "tenant:role", no crypto), hmac (HS256 with a shared key),
// jwks (RS256 keys fetched from a JWKS endpoint and cached).
type Verifier struct {
	Mode     string
	HMACKey  []byte
	JWKSURL  string
	Issuer   string
	Audience string

	http      *http.Client
	mu        sync.RWMutex
	jwks      jwks
	lastFetch time.Time
	cacheTTL  time.Duration

	// now is swapped in tests
	now func() time.Time
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

type Principal struct {
	Tenant string
	Role   string
}

func NewVerifier(cfg config.AuthConfig) *Verifier {
	ttl := 10 * time.Minute
	if cfg.CacheSecs > 0 {
		ttl = time.Duration(cfg.CacheSecs) * time.Second
	}
	return &Verifier{
		Mode:     strings.ToLower(strings.TrimSpace(cfg.Mode)),
		HMACKey:  []byte(cfg.HMACKey),
		JWKSURL:  cfg.JWKSURL,
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		http:     &http.Client{Timeout: 5 * time.Second},
		cacheTTL: ttl,
		now:      time.Now,
	}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "" || v.Mode == "dev" {
		parts := strings.Split(token, ":")
		if len(parts) >= 2 && parts[0] != "" {
			return Principal{Tenant: parts[0], Role: strings.ToLower(parts[1])}, nil
		}
		return Principal{}, errors.New("invalid dev token; expected tenant:role")
	}
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, errors.New("invalid JWT")
	}
	headerJSON, err := b64urlDecode(segs[0])
	if err != nil {
		return Principal{}, err
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return Principal{}, err
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return Principal{}, err
	}
	var hdr struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return Principal{}, err
	}
	signingInput := []byte(segs[0] + "." + segs[1])
	switch v.Mode {
	case "hmac":
		if hdr.Alg != "HS256" {
			return Principal{}, errors.New("unsupported alg for hmac")
		}
		mac := hmac.New(sha256.New, v.HMACKey)
		mac.Write(signingInput)
		if !hmac.Equal(mac.Sum(nil), sig) {
			return Principal{}, errors.New("bad signature")
		}
	case "jwks":
		if hdr.Alg != "RS256" {
			return Principal{}, errors.New("unsupported alg for jwks")
		}
		pub, err := v.rsaPublicKey(hdr.Kid)
		if err != nil {
			return Principal{}, err
		}
		h := sha256.Sum256(signingInput)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], sig); err != nil {
			return Principal{}, errors.New("bad signature")
		}
	default:
		return Principal{}, errors.New("unsupported auth mode")
	}

	var claims struct {
		Tenant string  `json:"tenant"`
		Role   string  `json:"role"`
		Iss    string  `json:"iss"`
		Aud    string  `json:"aud"`
		Exp    float64 `json:"exp"`
		Nbf    float64 `json:"nbf"`
	}
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Principal{}, err
	}
	now := v.now()
	if claims.Exp != 0 && now.After(time.Unix(int64(claims.Exp), 0)) {
		return Principal{}, errors.New("token expired")
	}
	if claims.Nbf != 0 && now.Before(time.Unix(int64(claims.Nbf), 0)) {
		return Principal{}, errors.New("token not yet valid")
	}
	if v.Issuer != "" && claims.Iss != v.Issuer {
		return Principal{}, errors.New("wrong issuer")
	}
	if v.Audience != "" && claims.Aud != v.Audience {
		return Principal{}, errors.New("wrong audience")
	}
	if claims.Tenant == "" {
		return Principal{}, errors.New("missing tenant claim")
	}
	role := claims.Role
	if role == "" {
		role = "user"
	}
	return Principal{Tenant: claims.Tenant, Role: strings.ToLower(role)}, nil
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }

func (v *Verifier) rsaPublicKey(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	cached := v.jwks
	stale := time.Since(v.lastFetch) > v.cacheTTL
	v.mu.RUnlock()
	if len(cached.Keys) == 0 || stale {
		if err := v.fetchJWKS(); err != nil {
			return nil, err
		}
		v.mu.RLock()
		cached = v.jwks
		v.mu.RUnlock()
	}
	for _, k := range cached.Keys {
		if k.Kid != kid || !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, err
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, err
		}
		// exponent is big-endian, typically 0x010001
		e := 0
		for _, b := range eBytes {
			e = (e << 8) | int(b)
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
	}
	return nil, errors.New("kid not found in JWKS")
}

func (v *Verifier) fetchJWKS() error {
	if v.JWKSURL == "" {
		return errors.New("jwks url not configured")
	}
	req, err := http.NewRequest(http.MethodGet, v.JWKSURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	var j jwks
	if err := json.NewDecoder(resp.Body).Decode(&j); err != nil {
		return err
	}
	v.mu.Lock()
	v.jwks = j
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}
