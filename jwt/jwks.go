package jwtkit

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
)

// JWK is the public half of an RSA verification key in JWK form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"` // base64url modulus
	E   string `json:"e"` // base64url exponent
}

// KeySet is the JWKS document a license server publishes for verifiers.
type KeySet struct {
	Keys []JWK `json:"keys"`
}

// AddRSA appends an RSA public key to the set.
func (ks *KeySet) AddRSA(pub *rsa.PublicKey, kid, alg string) {
	ks.Keys = append(ks.Keys, JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: kid,
		Alg: alg,
		N:   encodeBigInt(pub.N),
		E:   encodeBigInt(big.NewInt(int64(pub.E))),
	})
}

// Handler serves the set as JSON. The body and ETag are computed once, so
// pollers can cheaply revalidate with conditional GETs.
func (ks KeySet) Handler() http.Handler {
	body, err := json.Marshal(ks)
	if err != nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "key set unavailable", http.StatusInternalServerError)
		})
	}
	sum := sha256.Sum256(body)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300, must-revalidate")
		w.Header().Set("ETag", etag)
		_, _ = w.Write(body)
	})
}

// encodeBigInt writes a big-endian integer as base64url without leading
// zero octets, per RFC 7518.
func encodeBigInt(i *big.Int) string {
	b := i.Bytes()
	for len(b) > 0 && b[0] == 0x00 {
		b = b[1:]
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
