package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	repo "github.com/couchsync/server/internal/repository/room"
	"github.com/couchsync/server/pkg/ytvideoid"
)

type UpdateVideoParams struct {
	RoomId    string
	UserId    string
	VideoURL  string
	VideoType string
	VideoName string
}

type UpdateVideoResponse struct {
	Room Room
}

// UpdateVideo persists the room's active video selection. For YouTube
// sources a missing display name is filled in from video metadata,
// best effort.
func (s service) UpdateVideo(ctx context.Context, params *UpdateVideoParams) (UpdateVideoResponse, error) {
	res, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, repo.ErrRoomNotFound) {
			return UpdateVideoResponse{}, ErrRoomNotFound
		}
		return UpdateVideoResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	if params.UserId != res.HostId && params.UserId != res.GuestId {
		return UpdateVideoResponse{}, ErrNotInRoom
	}

	videoName := params.VideoName
	if params.VideoType == repo.VideoTypeYoutube && videoName == "" && s.videoData != nil {
		if videoId, err := ytvideoid.Extract(params.VideoURL); err == nil {
			fetchCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if data, err := s.videoData(fetchCtx, videoId); err == nil {
				videoName = data.Title
			}
			cancel()
		}
	}

	if err := s.roomRepo.UpdateVideo(ctx, &repo.UpdateVideoParams{
		RoomId:    params.RoomId,
		VideoURL:  params.VideoURL,
		VideoType: params.VideoType,
		VideoName: videoName,
	}); err != nil {
		return UpdateVideoResponse{}, fmt.Errorf("failed to update video: %w", err)
	}

	res.VideoURL = params.VideoURL
	res.VideoType = params.VideoType
	res.VideoName = videoName

	return UpdateVideoResponse{Room: fromRepoRoom(res)}, nil
}
