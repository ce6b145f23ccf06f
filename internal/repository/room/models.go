package room

import "time"

const (
	StatusWaiting = "waiting"
	StatusActive  = "active"
)

const (
	VideoTypeLocal   = "local"
	VideoTypeYoutube = "youtube"
)

type Room struct {
	Id        string `redis:"id"`
	HostId    string `redis:"host_id"`
	GuestId   string `redis:"guest_id"`
	RoomCode  string `redis:"room_code"`
	Status    string `redis:"status"`
	VideoURL  string `redis:"video_url"`
	VideoType string `redis:"video_type"`
	VideoName string `redis:"video_name"`
}

type ChatMessage struct {
	Id        string    `json:"id"`
	RoomId    string    `json:"room_id"`
	UserId    string    `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
