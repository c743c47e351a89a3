package session

import "errors"

var (
	ErrDestroyed  = errors.New("session destroyed")
	ErrNotHost    = errors.New("only the host can do that")
	ErrRoomExists = errors.New("room already open")
	ErrNoRoom     = errors.New("room not open")
)
