package room

import "time"

type Room struct {
	Id        string  `json:"id"`
	HostId    string  `json:"host_id"`
	GuestId   *string `json:"guest_id"`
	RoomCode  string  `json:"room_code"`
	Status    string  `json:"status"`
	VideoURL  *string `json:"video_url"`
	VideoType *string `json:"video_type"`
	VideoName *string `json:"video_name"`
}

type ChatMessage struct {
	Id        string    `json:"id"`
	RoomId    string    `json:"room_id"`
	UserId    string    `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
