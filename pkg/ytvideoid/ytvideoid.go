// Package ytvideoid extracts the 11-character video id from the URL
// shapes YouTube serves: watch?v=, youtu.be/, /shorts/ and /embed/.
package ytvideoid

import (
	"errors"
	"net/url"
	"strings"
)

var ErrNoVideoId = errors.New("no video id in url")

const idLength = 11

func Extract(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if v := u.Query().Get("v"); v != "" {
			id = v
			break
		}

		for _, prefix := range []string{"/shorts/", "/embed/", "/v/"} {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
				id, _, _ = strings.Cut(rest, "/")
				break
			}
		}
	default:
		return "", ErrNoVideoId
	}

	if len(id) != idLength {
		return "", ErrNoVideoId
	}

	return id, nil
}
