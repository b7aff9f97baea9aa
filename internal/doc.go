// Package internal holds helpers shared by the authcore engine and its
// sub-systems: identifier generation, secret hashing, and one-time code
// generation.
//
// # Architecture boundaries
//
// Nothing in this package performs I/O. Redis access lives in
// internal/stores and the session package; orchestration lives in the
// root package.
package internal
