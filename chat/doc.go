// Package chat owns the Twitch IRC session and the event pipeline.
//
// Relay supervises session establishment (initial attempt plus fixed-delay
// retries, then fatal) and hands every inbound message to the Pipeline:
// classification via the events package, vote eligibility and phase dedup via
// the phase package, and the operator reset side effect, all in stream order.
// Admitted events go to the ingest endpoint fire-and-forget; a failed forward
// is logged and counted, never retried, and never blocks the stream.
//
// Credentials: the IRC client needs the bot login and a user OAuth token with
// the chat:read scope (chat:edit if the account should also speak). When
// TWITCH_OAUTH_TOKEN is unset, main falls back to a stored token from the
// oauth_tokens table for provider "twitch", kept fresh by the oauth
// refresher; rotated tokens reach the client through Relay.UpdateToken.
package chat
