// Package notes implements the tenant-scoped note and tag stores.
//
// Every lookup runs through a Scope carrying the tenant account id and an
// optional owner constraint, so foreign and missing notes are equally
// absent from the caller's view. Tags are account-local, normalized, and
// created lazily when a note first references them.
package notes
