// Package billing implements plan upgrades through an external payment
// gateway: order creation, HMAC signature verification, the
// subscription/payment/invoice stores, and the expiry sweeper that
// downgrades accounts whose pro grant has lapsed.
package billing
