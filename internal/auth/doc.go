// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth provides the account domain for Gatehouse.
//
// # Domain Types
//
// User is the single persisted entity. Create instances through NewUser,
// which validates required fields; direct struct initialization bypasses
// validation and may create invalid state. Repository implementations
// receive pre-validated values.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - registration, login, access-token authentication
//   - PasswordResetService - reset-token issuance and password overwrite
//
// Tokens (access and reset) are stateless HS256 JWTs minted by TokenIssuer;
// nothing token-related is persisted server-side.
package auth
