// Package httputil provides shared JSON response and request helpers so
// every handler produces the same envelope and error shape.
package httputil
