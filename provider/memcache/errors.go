package memcache

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/unkn0wn-root/mcdb/status"
)

// resultOf translates a gomemcache error into a result code.
func resultOf(err error) status.Result {
	if err == nil {
		return status.OK
	}
	msg := err.Error()

	switch {
	case errors.Is(err, memcache.ErrCacheMiss):
		return status.Failed(status.CodeNotFound, "")
	case errors.Is(err, memcache.ErrNotStored):
		return status.Failed(status.CodeNotStored, "")
	case errors.Is(err, memcache.ErrCASConflict):
		return status.Failed(status.CodeDataExists, "")
	case errors.Is(err, memcache.ErrMalformedKey):
		return status.Failed(status.CodeBadKey, msg)
	case errors.Is(err, memcache.ErrNoServers):
		return status.Failed(status.CodeNoServers, msg)
	case errors.Is(err, memcache.ErrServerError):
		return status.Failed(status.CodeServerError, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Failed(status.CodeTimeout, msg)
	}

	var cte *memcache.ConnectTimeoutError
	if errors.As(err, &cte) {
		return status.Failed(status.CodeTimeout, msg)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return status.Failed(status.CodeTimeout, msg)
		}
		return status.Failed(status.CodeConnectionFailure, msg)
	}

	// gomemcache surfaces other status lines as plain errors
	switch {
	case strings.Contains(msg, "SERVER_ERROR"):
		return status.Failed(status.CodeServerError, msg)
	case strings.Contains(msg, "client error"), strings.Contains(msg, "CLIENT_ERROR"):
		return status.Failed(status.CodeClientError, msg)
	case strings.Contains(msg, "unexpected response line"):
		return status.Failed(status.CodeProtocolError, msg)
	}
	return status.Failed(status.CodeUnknown, msg)
}
