// Package auth implements the token codec, credential hashing and the
// authentication service that registers principals and signs them in.
package auth
