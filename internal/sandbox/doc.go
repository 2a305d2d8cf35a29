/*
Package sandbox runs assembled preview documents headlessly.

# Overview

A Runtime executes the scripts of a preview.Document inside a goja VM that
stands in for the preview frame. The page sees a small browser surface:

  - window, self and globalThis are the global object
  - window.parent.postMessage hands strings to the host Bridge
  - document with a mutable DOM proxy backed by x/net/html and goquery
  - console, alert, confirm and prompt, recorded on the Result
  - setTimeout and setInterval, run in virtual time after the page scripts

Library scripts arrive as base64 data URIs and are decoded before they run.
Any other external script is blocked.

# Errors

Uncaught errors do not stop the page. Each is recorded as a ScriptError and
passed to window.onerror as (message, source, line, column, error), so an
installed error bridge posts it to the host the same way it would from a
browser frame. Lines are relative to the script body; for the user script
ScriptError.UserLine maps back to the user's source.

# Limits

Each run is bounded by Config.Timeout and by the caller's context. The VM is
interrupted when either ends and the partial Result is returned with an
error wrapping ErrInterrupted. Timer callbacks are capped by
Config.MaxTimerRuns.

# Usage

	pool, err := sandbox.NewPool(sandbox.DefaultConfig(), 4)
	if err != nil {
		return err
	}
	defer pool.Close()

	result, err := pool.Execute(ctx, doc, sandbox.NewChannelBridge(64))
*/
package sandbox
