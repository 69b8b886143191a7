// Package authflow implements the session guard and account verification
// lifecycle for credential based applications.
//
// Route classification:
//   - RouteTable declares which pages are public, auth-only, or guest-only,
//     including shared pages whose sub-form is selected by an `action` query
//     parameter. Classify is total: malformed paths and unknown actions fall
//     back to sane defaults instead of erroring.
//
// Guarding:
//   - Guard is a pure reducer over session events. Every page load starts in
//     StateChecking with content hidden; the reducer decides exactly once per
//     load whether to reveal content or redirect, and in-flight credential
//     operations suppress the guard through scoped OperationGate tokens
//     rather than ambient globals.
//
// Verification:
//   - Verifier issues, validates, and expires 6-digit one-time passcodes
//     bound to a user record. At most one challenge is live per user and a
//     successful verify clears the challenge atomically with the verified
//     flag.
//
// Credential flows:
//   - The command handlers (register, login, recover, reset) orchestrate the
//     identity provider, the record store, and the mail dispatcher, mapping
//     provider failures onto a closed user-facing taxonomy.
package authflow
