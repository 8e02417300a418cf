// Package webhooks delivers signed JSON payloads to an HTTP endpoint.
//
// # Overview
//
// A Client POSTs a payload with these headers:
//
//	X-Httpusers-Event:     event name, e.g. "mail.forgot" or "user.create"
//	X-Httpusers-Delivery:  unique delivery id
//	X-Httpusers-Signature: sha256=<hex HMAC of the body> when a secret is set
//
// Network errors and 5xx responses are retried with exponential backoff;
// 4xx responses are permanent failures.
//
// Receivers verify authenticity with VerifySignature:
//
//	if !webhooks.VerifySignature(body, r.Header.Get(webhooks.SignatureHeader), secret) {
//		http.Error(w, "bad signature", http.StatusUnauthorized)
//	}
//
// NewEventSubscriber forwards lifecycle events from an events.Bus.
package webhooks
