// Package bridge defines the contract between an assembled preview and its
// host: the error and alert bridge scripts injected into the preview, the
// JSON envelope the error bridge posts to the parent frame, and the user
// script delimiter used to map runtime line numbers back to user source.
//
// The preview side only ever posts; nothing flows back in. Hosts must treat
// every message as untrusted and decode it with ParseEnvelope.
package bridge
