// Package services holds cross-cutting helpers for the external collaborators
// jellysync talks to: the error taxonomy shared by the transfer, manifest, and
// indexer clients.
package services
