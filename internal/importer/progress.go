package importer

import "time"

// 进度事件类型
const (
	EventStart    = "start"
	EventProgress = "progress"
	EventDone     = "done"
	EventError    = "error"
)

// ProgressEvent 进度事件
type ProgressEvent struct {
	Type      string      `json:"type"`      // start/progress/done/error
	Message   string      `json:"message"`   // 事件消息
	Progress  int         `json:"progress"`  // 0-100
	Data      interface{} `json:"data"`      // 附加数据
	Timestamp time.Time   `json:"timestamp"` // 时间戳
}
