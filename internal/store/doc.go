// Package store defines the narrow persistence capabilities the gatekeeper
// core depends on. The request gate and the authentication service only see
// these interfaces, so the backing store can be swapped without touching
// token or gate logic.
package store
