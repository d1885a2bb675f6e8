// Package transfer wraps the external transfer executable used to fetch
// content by magnet address.
package transfer
