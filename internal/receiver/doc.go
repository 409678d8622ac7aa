// Package receiver holds the ordered set of message receivers, persists the
// identities of revivable ones, and reconstructs them on the first use after a
// process restart.
//
// Receivers are offered every inbound message (and later the normalized
// payload) in registration order. Any receiver may claim a message; claiming
// does not stop the others from seeing it.
package receiver
