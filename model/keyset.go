// model/keyset.go
package model

import "time"

// JSONWebKey is one signing key from the identity provider's JWKS document.
type JSONWebKey struct {
	Kty string `json:"kty"`
	E   string `json:"e"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
}

// KeySetRecord is the cached JWKS document for one user pool.
type KeySetRecord struct {
	PoolID     string       `json:"pool_id"`
	Keys       []JSONWebKey `json:"keys"`
	FetchedAt  time.Time    `json:"fetched_at"`
	TTLSeconds int          `json:"ttl"`
}

// Key returns the key with the given key id, or nil.
func (r *KeySetRecord) Key(kid string) *JSONWebKey {
	for i := range r.Keys {
		if r.Keys[i].Kid == kid {
			return &r.Keys[i]
		}
	}
	return nil
}
