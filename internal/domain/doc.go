// Package domain contains the core entities of the gatekeeper service: the
// registered Principal, its Role, and the rules for normalizing and validating
// principal identifiers. It is independent of storage and transport.
package domain
