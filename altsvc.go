// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package harbor

import (
	"fmt"
	"net"
	"net/http"

	"github.com/harbornet/harbor/conn"
)

// altSvcValue computes the Alt-Svc header advertising HTTP/3 upgrade
// availability when any holding speaks it. Returns "" otherwise.
func altSvcValue(holdings []conn.Holding) string {
	for _, h := range holdings {
		if !holdsVersion(h, conn.VersionHTTP3) {
			continue
		}
		_, port, err := net.SplitHostPort(h.Addr.String())
		if err != nil {
			continue
		}
		return fmt.Sprintf(`h3=":%s"; ma=2592000,h3-29=":%s"; ma=2592000`, port, port)
	}
	return ""
}

func holdsVersion(h conn.Holding, v conn.Version) bool {
	for _, existing := range h.Versions {
		if existing == v {
			return true
		}
	}
	return false
}

// altSvcHandler attaches the Alt-Svc advertisement to every response.
// It is only installed on non-HTTP/3 connections.
func altSvcHandler(h http.Handler, value string) http.Handler {
	if value == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Alt-Svc", value)
		h.ServeHTTP(w, r)
	})
}
