// Package manifest defines the manifest document model, the consumer-side
// fetch client, and the curator-side file store.
package manifest
