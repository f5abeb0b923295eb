/*
Copyright © 2026 Duonode <duonode@posteo.net>
*/

package main

// CoordError is the closed taxonomy of failures a client can cause. Every
// rejected operation maps onto exactly one of the sentinels below; anything
// else reaching the wire is reported as Internal.
type CoordError struct {
	Kind    string
	Message string
}

func (e *CoordError) Error() string {
	return e.Message
}

var (
	ErrRoomNotFound      = &CoordError{Kind: "RoomNotFound", Message: "no live room matches that code or id"}
	ErrRoomFull          = &CoordError{Kind: "RoomFull", Message: "room already has two participants"}
	ErrRoomNotJoinable   = &CoordError{Kind: "RoomNotJoinable", Message: "room is not accepting new participants"}
	ErrNotEnoughPlayers  = &CoordError{Kind: "NotEnoughPlayers", Message: "two participants are required to start"}
	ErrNotAuthorized     = &CoordError{Kind: "NotAuthorized", Message: "only the host may do that"}
	ErrAlreadyInProgress = &CoordError{Kind: "AlreadyInProgress", Message: "the game has already started"}
	ErrInvalidInput      = &CoordError{Kind: "InvalidInput", Message: "malformed or missing fields"}
	ErrInvalidSignal     = &CoordError{Kind: "InvalidSignal", Message: "signal payload must carry a negotiation type or an ice candidate"}
	ErrCodesExhausted    = &CoordError{Kind: "CodesExhausted", Message: "room code space exhausted"}
	ErrInternal          = &CoordError{Kind: "Internal", Message: "internal error"}
)
