package delivery

import (
	"encoding/base64"
	"maps"
)

// Headers is the fixed header set sent with every request. It is built once
// at startup and never modified; Map hands out copies.
type Headers struct {
	m map[string]string
}

// NewHeaders builds the request headers for apiKey and userAgent.
func NewHeaders(apiKey, userAgent string) Headers {
	return Headers{m: map[string]string{
		"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(apiKey)),
		"Content-Type":  "application/json",
		"User-Agent":    userAgent,
	}}
}

// Get returns the value of a header, or "" when unset.
func (h Headers) Get(name string) string {
	return h.m[name]
}

// Map returns a copy of the headers safe for the caller to modify.
func (h Headers) Map() map[string]string {
	return maps.Clone(h.m)
}
