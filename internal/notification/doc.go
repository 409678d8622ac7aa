// Package notification turns a RawMessage into the canonical Descriptor that
// renderers and sinks consume.
//
// The structured notification channel and the free-form data channel are
// merged with a fixed precedence:
//
//  1. structured fields seed the result (messageType "notification"),
//     otherwise messageType is "data";
//  2. data keys listed in DataKeys override, even when their value is empty;
//  3. an empty tag is dropped, a non-empty tag replaces the id;
//  4. a still-missing id becomes a random decimal in [1, 50];
//  5. ShowNotification is decided from the AppState and title/body presence.
//
// Normalize never fails and performs no I/O. Numeric render hints are parsed
// lazily by Descriptor.RenderOptions, which reports malformed values to the
// caller without failing the message.
package notification
