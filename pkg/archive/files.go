package archive

import (
	"net/url"
	"strings"
)

// Playable-file selection walks these tiers in order: an mp3 by file
// extension beats an mp3 by declared format, which beats ogg by either
// rule. Playlist files (.m3u, .m3u8) are never playable; they index other
// files rather than carrying audio.

const (
	primaryExt     = ".mp3"
	primaryToken   = "mp3"
	secondaryExt   = ".ogg"
	secondaryToken = "ogg"
	playlistToken  = "m3u"
)

// PickPlayable selects the preferred playable file from an item's file
// listing. The second return is false when no file qualifies.
func PickPlayable(files []File) (File, bool) {
	tiers := []func(File) bool{
		func(f File) bool { return hasExt(f.Name, primaryExt) },
		func(f File) bool { return formatContains(f.Format, primaryToken) },
		func(f File) bool { return hasExt(f.Name, secondaryExt) },
		func(f File) bool { return formatContains(f.Format, secondaryToken) },
	}

	for _, match := range tiers {
		for _, f := range files {
			if isPlaylist(f) {
				continue
			}
			if match(f) {
				return f, true
			}
		}
	}

	return File{}, false
}

func isPlaylist(f File) bool {
	name := strings.ToLower(f.Name)
	if strings.HasSuffix(name, ".m3u") || strings.HasSuffix(name, ".m3u8") {
		return true
	}
	return formatContains(f.Format, playlistToken)
}

func hasExt(name, ext string) bool {
	return strings.HasSuffix(strings.ToLower(name), ext)
}

func formatContains(format, token string) bool {
	return strings.Contains(strings.ToLower(format), token)
}

// DownloadURL builds the absolute download URL for a file within an item.
// The identifier and each path segment of the file name are percent-encoded
// independently so that a name like "disc 1/01 track.mp3" keeps its segment
// separator.
func (c *Client) DownloadURL(identifier, name string) string {
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return c.baseURL + "/download/" + url.PathEscape(identifier) + "/" + strings.Join(segments, "/")
}
