/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"bytes"
	"net/http"
)

// statusResponseWriter captures the response status code of the downstream handler.
type statusResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(rw http.ResponseWriter) *statusResponseWriter {
	return &statusResponseWriter{ResponseWriter: rw, status: http.StatusOK}
}

func (w *statusResponseWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusResponseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// bufferingResponseWriter writes the response through to the client and
// additionally buffers the body so that it can be stored in the cache.
type bufferingResponseWriter struct {
	statusResponseWriter
	buf bytes.Buffer
}

func newBufferingResponseWriter(rw http.ResponseWriter) *bufferingResponseWriter {
	return &bufferingResponseWriter{
		statusResponseWriter: statusResponseWriter{ResponseWriter: rw, status: http.StatusOK},
	}
}

func (w *bufferingResponseWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.statusResponseWriter.Write(b)
}
