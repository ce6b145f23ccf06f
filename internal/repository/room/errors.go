package room

import "errors"

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomCodeTaken  = errors.New("room code taken")
	ErrGuestSeatTaken = errors.New("guest seat taken")
)
