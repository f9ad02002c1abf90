// Package moemail provides the user lifecycle and temporary-access core for a
// webmail admin application: status evaluation, reusable and single-use login
// links, credential artifact exchange, batch account administration, and the
// HTTP surface tying them together.
//
// User lifecycle:
//   - Users carry a UserStatus field that is persisted via Bun. Statuses cover
//     active, expired, disabled, and suspended flows; EffectiveStatus gives the
//     wall-clock aware answer without touching storage.
//   - StatusEngine is the single gate every sign-in path consults. It lazily
//     reconciles accounts whose expiry date passed while they were stored as
//     active, and surfaces a fixed human readable reason for each rejection.
//
// Temporary access tokens:
//   - TokenStore issues bearer tokens (tlt_ prefix) backing admin-generated
//     login links. Reusable tokens survive any number of validations until
//     expiry; single-use tokens are consumed atomically on first validation.
//   - Validation failures collapse into one answer (gone) so tokens cannot be
//     enumerated; owner status is checked on every validation.
//
// Credential artifacts:
//   - The login orchestrators hand the client a short-lived artifact instead
//     of a session. UserProvider.VerifyIdentity accepts it in the password
//     slot, verifies the embedded identity and freshness window, and the
//     regular JWT session issuance takes over from there.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the engine, the
//     token store, and the batch handler. Sinks run best-effort (errors are
//     logged) so you can forward to a database or queue without blocking
//     authentication. The activitymap subpackage converts events into a
//     transport-agnostic shape for downstream feeds.
package moemail
