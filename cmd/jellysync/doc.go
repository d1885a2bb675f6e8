// Command jellysync is the CLI for the jellysync media distribution tool.
// It runs the consumer daemon, the curator server, and the client commands
// that talk to either.
package main
