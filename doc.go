// Package divide implements the credential and session backbone of a
// mobile backend: sign-up, login, one-time recovery, account validation,
// and bearer-token resolution over a generic record store.
//
// Passwords travel RSA-sealed against the server public key and persist
// only as bcrypt hashes. Tokens are HMAC-signed, time-bounded strings
// minted by TokenService. Records are schemaless attribute bags queried
// through the query package; storage backends live under storage/.
//
// The HTTP surface mounts with RegisterAuthRoutes on a fiber app, and
// the client package drives the full session lifecycle from the other
// side of the wire.
package divide
