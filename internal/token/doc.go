// Package token implements the self-describing access token: an inner payload
// (identity plus soft and hard expiry) serialized as deterministic CBOR,
// digested with the service secret through package mac, wrapped in an
// envelope and transported as a single base64 string.
//
// The package is pure. It performs no I/O and holds no global state; the
// secret lives in the Codec value built at startup.
package token
