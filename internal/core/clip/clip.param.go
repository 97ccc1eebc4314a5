package clip

import (
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
)

type FindClipInput struct {
	web.PagerFilter
	web.DateFilter
	Mode  string `form:"mode"`  // continuous / bounded
	State string `form:"state"` // saved / discarded / failed
	Name  string `form:"name"`
}

type AddClipInput struct {
	EventID   string   `json:"event_id"`
	Mode      string   `json:"mode"`
	Name      string   `json:"name"`
	Path      string   `json:"path"`
	Format    string   `json:"format"`
	Frames    int      `json:"frames"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	FPS       int      `json:"fps"`
	Size      int64    `json:"size"`
	State     string   `json:"state"`
	Reason    string   `json:"reason"`
	Duration  float64  `json:"duration"`
	StartedAt orm.Time `json:"started_at"`
	EndedAt   orm.Time `json:"ended_at"`
}

// TimelineInput 时间轴查询参数
type TimelineInput struct {
	web.DateFilter
	Mode string `form:"mode"`
}

// TimeRange 时间轴上的一个片段时段
type TimeRange struct {
	ID       int64   `json:"id"`
	Mode     string  `json:"mode"`
	StartMs  int64   `json:"start_ms"`
	EndMs    int64   `json:"end_ms"`
	Duration float64 `json:"duration"`
}

// TriggerEventInput 触发录制事件
type TriggerEventInput struct {
	// Mode 缺省为 continuous
	Mode string `json:"mode"`
	Name string `json:"name"`
}
