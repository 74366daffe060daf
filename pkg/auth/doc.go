// Package auth implements the credential and token service: bcrypt password
// hashing, signed session tokens with an invalidation watermark, the closed
// role enumeration with its fixed permission sets, and the Postgres user and
// role stores.
//
// The watermark contract gives instant stateless revocation: a token is valid
// only if its issued-at time is not before the user's TokensInvalidBefore
// timestamp, which is bumped on password change and logout.
package auth
