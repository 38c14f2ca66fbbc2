// Package events builds calendar event payloads and list queries and runs
// them against a Provider.
//
// Provider failures never escape as panics: they come back as *ProviderError
// so callers can tell success, an empty listing and failure apart without
// parsing output.
package events
