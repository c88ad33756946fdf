// Package tlsutil holds the TLS settings of outbound API clients and of
// the HTTPS listener.
package tlsutil
