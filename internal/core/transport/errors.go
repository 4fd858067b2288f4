package transport

import "errors"

// ErrNoTransport 没有与 TransportName 对应的传输
var ErrNoTransport = errors.New("no transport registered for name")
