package room

type SetRoomParams struct {
	Id       string
	HostId   string
	RoomCode string
}

type SetGuestParams struct {
	RoomId  string
	GuestId string
}

type UpdateVideoParams struct {
	RoomId    string
	VideoURL  string
	VideoType string
	VideoName string
}

type AddChatMessageParams struct {
	Message ChatMessage
}
