package ssdb

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/mcdb/status"
)

// resultOf translates a go-redis error into a result code.
func resultOf(err error) status.Result {
	if err == nil {
		return status.OK
	}
	if errors.Is(err, redis.Nil) {
		return status.Failed(status.CodeNotFound, "")
	}
	msg := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Failed(status.CodeTimeout, msg)
	case errors.Is(err, redis.ErrClosed), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return status.Failed(status.CodeConnectionFailure, msg)
	case strings.Contains(msg, "connection pool timeout"):
		return status.Failed(status.CodeTimeout, msg)
	}

	var rerr redis.Error
	if errors.As(err, &rerr) {
		switch {
		case strings.Contains(msg, "not an integer"), strings.HasPrefix(msg, "WRONGTYPE"):
			return status.Failed(status.CodeClientError, msg)
		case strings.HasPrefix(msg, "ERR unknown command"):
			return status.Failed(status.CodeProtocolError, msg)
		}
		return status.Failed(status.CodeServerError, msg)
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return status.Failed(status.CodeTimeout, msg)
		}
		return status.Failed(status.CodeConnectionFailure, msg)
	}
	return status.Failed(status.CodeUnknown, msg)
}

// transport reports whether r describes a broken connection rather than a
// per-command reply.
func transport(r status.Result) bool {
	switch r.Code {
	case status.CodeConnectionFailure, status.CodeTimeout:
		return true
	}
	return false
}
