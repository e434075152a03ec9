// Package accounts implements the account lifecycle of the recruiting
// platform: local accounts, role membership and the hosted identity
// directory that owns credentials.
//
// Lifecycle:
//   - Accounts are created by Signup (self-service, SELF_SIGNED_UP) or by
//     Invite (administrator driven, PENDING_INVITE). The username is the
//     primary contact, email or phone, and the channel is stored on the
//     account so reminders never have to guess it.
//   - Lifecycle keeps the Account Store and the IdentityDirectory in step.
//     The two systems share no transaction; every cross-system operation is
//     recorded in the operations log so interrupted sequences can be found
//     and reconciled.
//
// Access:
//   - AccessGuard verifies bearer tokens against the provider's published
//     key set, resolves the local account named by the identity claim and
//     answers RequireRole checks from a RoleSet.
//
// Activity sinks:
//   - ActivitySink receives lifecycle events (signup, invitation, reminder,
//     role changes, partial failures). Sinks run best-effort; errors are
//     logged and never fail the operation.
package accounts
