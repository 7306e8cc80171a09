package memcache

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

var (
	statPrefix = []byte("STAT ")
	statEnd    = []byte("END")
)

// readStats issues the text "stats" command on a dedicated socket. The
// client library keeps its sockets private and has no stats call.
func readStats(ctx context.Context, dial dialFunc, addr string, timeout time.Duration) (map[string]string, error) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	nc, err := dial(dctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer nc.Close()
	deadline, _ := dctx.Deadline()
	if err := nc.SetDeadline(deadline); err != nil {
		return nil, err
	}

	rw := bufio.NewReadWriter(bufio.NewReader(nc), bufio.NewWriter(nc))
	if _, err := rw.WriteString("stats\r\n"); err != nil {
		return nil, err
	}
	if err := rw.Flush(); err != nil {
		return nil, err
	}
	return parseStats(rw.Reader)
}

// parseStats reads "STAT <name> <value>" lines up to "END".
func parseStats(br *bufio.Reader) (map[string]string, error) {
	out := make(map[string]string)
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		switch {
		case bytes.Equal(line, statEnd):
			return out, nil
		case bytes.HasPrefix(line, statPrefix):
			name, value, ok := bytes.Cut(line[len(statPrefix):], []byte(" "))
			if !ok {
				return nil, fmt.Errorf("memcache: malformed stats line: %q", line)
			}
			out[string(name)] = string(value)
		default:
			return nil, fmt.Errorf("memcache: unexpected response line from stats: %q", line)
		}
	}
}

func readLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadSlice('\n')
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, fmt.Errorf("memcache: unexpected response line: %q", line)
	}
	return line[:len(line)-2], nil
}

func statUint(raw map[string]string, name string) (uint64, error) {
	v, ok := raw[name]
	if !ok {
		return 0, fmt.Errorf("memcache: stats payload missing %q", name)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("memcache: stats %q: %w", name, err)
	}
	return n, nil
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)
