// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth implements the credential lifecycle for Gatehouse.
//
// # Domain Types
//
// Principal is the authenticatable entity. It comes in two kinds (user and
// business) that share one username namespace and one set of credential
// invariants. Principals should be created through NewPrincipal, which
// validates registration input and guarantees the password hash is populated
// before the principal ever reaches a repository.
//
// # Services
//
// Service coordinates registration, login, logout, and lookups. It is the
// only place plaintext passwords are read; everything downstream sees the
// argon2id hash. Sessions and bearer tokens are issued together on both
// registration and login.
//
// Repository implementations live in the auth/postgres, auth/memory, and
// auth/redis subpackages.
package auth
