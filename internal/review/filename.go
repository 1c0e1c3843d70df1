package review

import (
	"fmt"
	"regexp"
	"time"
)

// MediaFileName builds the canonical media file name:
// {id}-{index}_{channelId}-{userId}_{unixts}.{ext}
func MediaFileName(id int64, index int, channelID, userID string, at time.Time, ext string) string {
	return fmt.Sprintf("%d-%d_%s-%s_%d.%s", id, index, channelID, userID, at.Unix(), ext)
}

var mediaFilePattern = regexp.MustCompile(
	`^(?P<id>\d+)[-_](?P<index>\d+)_(?P<channelId>\d+)[-_](?P<userId>\d+)_(?P<timestamp>[^.]+)\.(?P<extension>.+)$`)

// MatchesMediaFileName reports whether a stored file follows the naming
// convention; an underscore is also accepted in place of either hyphen.
// The fix sweep does not check stored file names.
func MatchesMediaFileName(fileName string) bool {
	return mediaFilePattern.MatchString(fileName)
}
