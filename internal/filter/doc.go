// Package filter implements the request-path access-control filter.
//
// The filter holds an ordered table of URI patterns, each carrying either
// an allow-list or a deny-list of roles, plus a fallback route table used
// to compute redirect targets for denied requests.
//
// # Pattern matching
//
// Patterns are regular expressions matched unanchored against the request
// path: a pattern restricts a path when it matches anywhere within it,
// substring style. This is part of the public contract — a pattern like
// "^/admin" restricts every path under /admin, and "/edit" restricts any
// path containing that fragment. Patterns are evaluated in registration
// order and the first restrictive match wins; a permitting match does not
// stop evaluation, since a later pattern may still restrict the role.
//
// # Configuration and evaluation
//
// Configuration is held in an immutable snapshot behind an atomic pointer.
// Mutators build a fresh snapshot and swap it in, so Evaluate never locks
// and mutation may safely interleave with concurrent evaluation.
//
// The package provides net/http and gin middleware that extract the
// requester's role, evaluate the request path and translate a redirect
// decision into an HTTP redirect response.
package filter
