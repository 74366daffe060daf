// Package accounts implements the tenant store. An account is the isolation
// boundary: every user, note, tag, subscription and payment references
// exactly one account. Accounts carry the subscription plan, the note quota
// and the current note count used by the quota gate.
package accounts
