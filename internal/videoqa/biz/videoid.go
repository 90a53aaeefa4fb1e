package biz

import (
	"regexp"
	"strings"

	"github.com/kart-io/videoqa/pkg/utils/errors"
)

// VideoID 视频 ID，非空。
type VideoID string

func (id VideoID) String() string { return string(id) }

// 按顺序匹配的链接标记。
var videoIDMarkers = []string{"watch?v=", "youtu.be/"}

var strictVideoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID 返回最后一个链接标记之后的子串。
// 后缀不做字符校验，原样透传给字幕服务。
func ExtractVideoID(reference string) (VideoID, error) {
	for _, marker := range videoIDMarkers {
		if !strings.Contains(reference, marker) {
			continue
		}
		id := reference[strings.LastIndex(reference, marker)+len(marker):]
		if id == "" {
			return "", errors.ErrVideoInvalidReference
		}
		return VideoID(id), nil
	}
	return "", errors.ErrVideoInvalidReference
}

// ExtractVideoIDStrict 在 ExtractVideoID 的基础上截掉 &、? 或 # 之后的查询部分，
// 并要求结果为 11 位 URL 安全字符。
func ExtractVideoIDStrict(reference string) (VideoID, error) {
	id, err := ExtractVideoID(reference)
	if err != nil {
		return "", err
	}
	s := string(id)
	if i := strings.IndexAny(s, "&?#"); i >= 0 {
		s = s[:i]
	}
	if !strictVideoIDPattern.MatchString(s) {
		return "", errors.ErrVideoInvalidReference
	}
	return VideoID(s), nil
}
