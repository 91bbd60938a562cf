// Package ssh serves the outlet menu over SSH.
//
// Clients are not authenticated: a session is identified by its peer
// address, the same way the web page identifies a request. The menu is a
// bubbletea program driven by single keypresses.
package ssh
