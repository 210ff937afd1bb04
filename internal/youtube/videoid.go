package youtube

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
)

var (
	videoIDFromURL = regexp.MustCompile(`(?:v=|/videos/|embed/|youtu\.be/)([a-zA-Z0-9_-]{11})`)
	rawVideoID     = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	channelPath    = regexp.MustCompile(`/c/([^/?]+)`)
	userPath       = regexp.MustCompile(`/user/([^/?]+)`)
)

// ExtractVideoID pulls the 11-character video id out of a watch/embed/short
// URL or accepts a raw id. Returns ErrInvalidVideoID when nothing matches.
func ExtractVideoID(input string) (string, error) {
	if input == "" {
		return "", domain.ErrInvalidVideoID
	}
	if m := videoIDFromURL.FindStringSubmatch(input); m != nil {
		return m[1], nil
	}
	if rawVideoID.MatchString(input) {
		return input, nil
	}
	return "", domain.ErrInvalidVideoID
}

// AutoLabel derives a display label from a video URL or id when the user
// left the label blank: channel or user name when the URL carries one,
// otherwise the video id.
func AutoLabel(input string) string {
	if m := channelPath.FindStringSubmatch(input); m != nil {
		if name, err := url.PathUnescape(m[1]); err == nil {
			return fmt.Sprintf("Channel: %s", name)
		}
	}
	if m := userPath.FindStringSubmatch(input); m != nil {
		if name, err := url.PathUnescape(m[1]); err == nil {
			return fmt.Sprintf("User: %s", name)
		}
	}
	if id, err := ExtractVideoID(input); err == nil {
		return fmt.Sprintf("Video: %s", id)
	}
	return "YouTube stream"
}
