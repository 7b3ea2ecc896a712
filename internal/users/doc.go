// Package users is renewd's user directory: a gorm model over sqlite with argon2id
// password hashes.
package users
