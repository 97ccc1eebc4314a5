package clip

import "github.com/ixugo/goddd/pkg/orm"

// Clip 已落库的片段元数据
type Clip struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID string `gorm:"column:event_id;index" json:"event_id"` // 触发事件 ID
	Mode    string `gorm:"column:mode" json:"mode"`               // continuous / bounded
	Name    string `gorm:"column:name" json:"name"`               // 触发方自定义名称
	Path    string `gorm:"column:path" json:"path"`               // 文件相对路径
	Format  string `gorm:"column:format" json:"format"`           // 封装格式
	Frames  int    `gorm:"column:frames" json:"frames"`           // 实际写出帧数
	Width   int    `gorm:"column:width" json:"width"`
	Height  int    `gorm:"column:height" json:"height"`
	FPS     int    `gorm:"column:fps" json:"fps"`
	Size    int64  `gorm:"column:size" json:"size"` // 文件大小（字节）
	// State saved / discarded / failed
	State     string   `gorm:"column:state;index" json:"state"`
	Reason    string   `gorm:"column:reason" json:"reason"` // 丢弃或失败原因
	Duration  float64  `gorm:"column:duration" json:"duration"`
	StartedAt orm.Time `gorm:"column:started_at;index" json:"started_at"`
	EndedAt   orm.Time `gorm:"column:ended_at" json:"ended_at"`
	CreatedAt orm.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt orm.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (*Clip) TableName() string {
	return "clips"
}
