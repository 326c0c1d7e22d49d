// Package services implements the HTTP clients mpsync talks to: the publishing platform
// (through an abortable, whitelisted [Transport]) and an optional remote account store.
//
// # Transport
//
// [HTTPTransport] only contacts whitelisted hosts and keeps a registry of in-flight requests
// keyed by request id. [HTTPTransport.Abort] cancels one; the aborted call resolves to a
// [Response] with Aborted set rather than an error.
//
// # Gateway
//
// [Gateway] turns platform operations into authenticated requests. Credentials come from a
// [CredentialResolver] or are passed in directly. URLs and bodies are built from the resolved
// token, and each endpoint picks its own [ResponseCheck]:
//   - [CheckBaseResp] : base_resp.ret must be 0, otherwise a [BusinessError]
//   - [NoCheck] : the endpoint interprets result codes itself (regions, copyright, QR)
//
// Transport failures wrap [shared.ErrRequestFailed]; aborts wrap [shared.ErrAborted].
//
// # Result codes
//
// Business codes are resolved through an embedded code table (codes.json). Unknown codes fall
// back to the server message, then to [DefaultErrorMessage].
//
// # Polling
//
// The copyright check and QR confirmation poll with a fixed delay and an attempt cap. A
// copyright check that never leaves the pending state is an error; a QR poll that does is a
// timeout result.
//
// # Backend
//
// [BackendClient] pushes incremental auth diffs and account upserts to the remote account API
// using a bearer token.
package services
