package capture

import (
	"time"

	"github.com/gowvp/kite/internal/core/frame"
	"github.com/gowvp/kite/pkg/ffcap"
)

// FFSource 把 ffcap 拉流通道适配为采集源
type FFSource struct {
	cap    *ffcap.Capture
	width  int
	height int
}

func NewFFSource(c *ffcap.Capture, width, height int) *FFSource {
	return &FFSource{cap: c, width: width, height: height}
}

// NextFrame 阻塞等待下一帧；流结束后按采集失败处理，
// 稍作休眠避免解耦器空转
func (s *FFSource) NextFrame() (*frame.Frame, bool) {
	f, ok := <-s.cap.Frames()
	if !ok {
		time.Sleep(100 * time.Millisecond)
		return nil, false
	}
	return &frame.Frame{
		Seq:       f.FrameNum,
		Width:     s.width,
		Height:    s.height,
		Color:     true,
		Data:      f.Data,
		Timestamp: f.Timestamp,
	}, true
}
