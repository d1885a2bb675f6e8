// Package server implements the curator HTTP API: manifest publication per
// group and seed lifecycle management. Consumers poll the manifest endpoints;
// the seed endpoints drive the long-running transfer processes.
package server
