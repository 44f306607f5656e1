package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// dialTimeout covers only the connect phase.
const dialTimeout = 5 * time.Second

// maxResponseSize bounds what Call will read back.
const maxResponseSize = 16 << 20

// ErrAborted is returned by Call when the server closes the connection
// without writing a response.
var ErrAborted = errors.New("connection closed without response")

// Call performs one exchange with the service listening on path: it writes
// req, closes its write side and reads the response until EOF. The ctx
// deadline, if any, bounds the whole exchange.
func Call(ctx context.Context, path string, req []byte) ([]byte, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("writing request to %s: %w", path, err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return nil, fmt.Errorf("closing write side: %w", err)
		}
	}

	resp, err := readAll(conn, maxResponseSize)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", path, err)
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrAborted)
	}
	return resp, nil
}
