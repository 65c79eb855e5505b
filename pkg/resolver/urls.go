package resolver

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// IsURL checks if a string appears to be a URL
func IsURL(str string) bool {
	return strings.HasPrefix(str, "http://") || strings.HasPrefix(str, "https://") ||
		strings.HasPrefix(str, "www.")
}

// NormalizeURL adds a scheme to bare www. references
func NormalizeURL(str string) string {
	if strings.HasPrefix(str, "www.") {
		return "https://" + str
	}
	return str
}

// IsYouTubeURL checks if a URL appears to be from YouTube
func IsYouTubeURL(urlStr string) bool {
	u, err := url.Parse(NormalizeURL(urlStr))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	return host == "youtube.com" || host == "m.youtube.com" ||
		host == "music.youtube.com" || host == "youtu.be"
}

// IsYouTubePlaylistURL reports whether the URL names a playlist
func IsYouTubePlaylistURL(urlStr string) bool {
	if !IsYouTubeURL(urlStr) {
		return false
	}
	u, err := url.Parse(NormalizeURL(urlStr))
	if err != nil {
		return false
	}
	return u.Query().Get("list") != ""
}

// ExtractYouTubeVideoID extracts the video ID from a YouTube URL
func ExtractYouTubeVideoID(youtubeURL string) string {
	u, err := url.Parse(NormalizeURL(youtubeURL))
	if err != nil {
		return ""
	}

	if strings.Contains(u.Host, "youtu.be") {
		return validVideoID(strings.TrimPrefix(u.Path, "/"))
	}

	if id := u.Query().Get("v"); id != "" {
		return validVideoID(id)
	}

	// /embed/ID, /shorts/ID, /live/ID
	for _, prefix := range []string{"/embed/", "/shorts/", "/live/"} {
		if strings.HasPrefix(u.Path, prefix) {
			return validVideoID(strings.Split(strings.TrimPrefix(u.Path, prefix), "/")[0])
		}
	}

	return ""
}

func validVideoID(id string) string {
	if videoIDPattern.MatchString(id) {
		return id
	}
	return ""
}

// WatchURL returns the canonical watch url of a video
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// YouTubeThumbnailURL generates a thumbnail URL from a video ID
func YouTubeThumbnailURL(videoID string) string {
	if videoID == "" {
		return ""
	}
	return fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", videoID)
}

var audioExtensions = map[string]bool{
	".mp3": true, ".ogg": true, ".opus": true, ".flac": true,
	".wav": true, ".m4a": true, ".aac": true, ".webm": true,
}

// IsAudioFileURL reports whether the URL points directly at an audio file
func IsAudioFileURL(urlStr string) bool {
	if !IsURL(urlStr) {
		return false
	}
	u, err := url.Parse(NormalizeURL(urlStr))
	if err != nil {
		return false
	}
	return audioExtensions[strings.ToLower(path.Ext(u.Path))]
}
