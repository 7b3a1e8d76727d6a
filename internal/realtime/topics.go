package realtime

import (
	"context"
	"strconv"

	"github.com/wigennn/novel-tui/internal/sockjs"
)

// Broker destinations used by the backend.
const (
	DestChapterStream = "/app/chapters/stream"
	DestChapterStop   = "/app/chapters/stop"
	DestNovelStream   = "/app/novels/stream"
	DestNovelStop     = "/app/novels/stop"
)

// TaskTopic carries TaskDTO updates for one task.
func TaskTopic(taskID int64) string {
	return "/topic/tasks/" + strconv.FormatInt(taskID, 10)
}

// UserTasksTopic carries TaskDTO updates for every task of one user.
func UserTasksTopic(userID int64) string {
	return "/topic/users/" + strconv.FormatInt(userID, 10) + "/tasks"
}

func NovelStructureTopic(novelID int64) string {
	return "/topic/novels/" + strconv.FormatInt(novelID, 10) + "/structure"
}

func NovelOutlineTopic(novelID int64) string {
	return "/topic/novels/" + strconv.FormatInt(novelID, 10) + "/outline"
}

func ChapterTopic(novelID int64, chapter int) string {
	return "/topic/chapters/" + strconv.FormatInt(novelID, 10) + "/" + strconv.Itoa(chapter)
}

// SockJSDialer dials endpoint with the SockJS websocket transport, or as a
// raw websocket when opts.Raw is set.
func SockJSDialer(endpoint string, opts sockjs.Options) Dialer {
	return func(ctx context.Context) (Transport, error) {
		c, err := sockjs.Dial(ctx, endpoint, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
