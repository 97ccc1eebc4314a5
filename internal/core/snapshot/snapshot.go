// Package snapshot 长曝光快照：在指定曝光时长内叠加亮度平面，
// 归一化拉伸后输出灰度 PNG，用于弱光场景取证
package snapshot

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowvp/kite/internal/conf"
	"github.com/gowvp/kite/internal/core/frame"
	"github.com/ixugo/goddd/pkg/reason"
)

// maxExposure 曝光时长上限，避免长时间占用消费循环
const maxExposure = time.Minute

// FrameTapper 帧观察者注册口，由录制引擎实现
type FrameTapper interface {
	AddTap(id string, fn func(*frame.Frame))
	RemoveTap(id string)
}

type Result struct {
	Path     string    `json:"path"`
	Frames   int       `json:"frames"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	TakenAt  time.Time `json:"taken_at"`
	Exposure float64   `json:"exposure"`
}

type Core struct {
	tapper FrameTapper
	conf   *conf.Snapshot
}

func NewCore(tapper FrameTapper, conf *conf.Snapshot) Core {
	return Core{tapper: tapper, conf: conf}
}

// Take 曝光 exposure 时长并落盘快照
// 期间经过的每一帧都参与叠加，无帧经过则报错
func (c Core) Take(ctx context.Context, exposure time.Duration) (*Result, error) {
	if exposure <= 0 {
		exposure = time.Second
	}
	if exposure > maxExposure {
		return nil, reason.ErrBadRequest.Withf("曝光时长超过上限 %s", maxExposure)
	}

	st := &stacker{}
	id := uuid.NewString()
	c.tapper.AddTap(id, st.add)
	t := time.NewTimer(exposure)
	defer t.Stop()
	select {
	case <-ctx.Done():
		c.tapper.RemoveTap(id)
		return nil, ctx.Err()
	case <-t.C:
	}
	c.tapper.RemoveTap(id)

	img, frames := st.render()
	if frames == 0 {
		return nil, reason.ErrServer.SetMsg("曝光期间没有采集到帧")
	}

	if err := os.MkdirAll(c.conf.OutputDir, 0o755); err != nil {
		return nil, reason.ErrServer.Withf("创建输出目录失败 err[%s]", err)
	}
	now := time.Now()
	path := filepath.Join(c.conf.OutputDir, fmt.Sprintf("Manual_%s.png", now.Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return nil, reason.ErrServer.Withf("创建快照文件失败 err[%s]", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return nil, reason.ErrServer.Withf("编码快照失败 err[%s]", err)
	}

	b := img.Bounds()
	return &Result{
		Path:     path,
		Frames:   frames,
		Width:    b.Dx(),
		Height:   b.Dy(),
		TakenAt:  now,
		Exposure: exposure.Seconds(),
	}, nil
}

// stacker 逐帧叠加亮度平面
// add 在消费循环里同步执行，只做一次加法扫描
type stacker struct {
	mu     sync.Mutex
	w, h   int
	acc    []int32
	frames int
}

func (s *stacker) add(f *frame.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acc == nil {
		s.w, s.h = f.Width, f.Height
		s.acc = make([]int32, s.w*s.h)
	}
	// 分辨率中途变化的帧直接忽略
	if f.Width != s.w || f.Height != s.h || len(f.Data) < s.w*s.h {
		return
	}
	// YUV420P 的前 w*h 字节即亮度平面
	for i := range s.acc {
		s.acc[i] += int32(f.Data[i])
	}
	s.frames++
}

// render 归一化到 [0,255] 并转为灰度图
func (s *stacker) render() (*image.Gray, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames == 0 {
		return nil, 0
	}
	max := int32(1)
	for _, v := range s.acc {
		if v > max {
			max = v
		}
	}
	img := image.NewGray(image.Rect(0, 0, s.w, s.h))
	for i, v := range s.acc {
		img.Pix[i] = uint8(int64(v) * 255 / int64(max))
	}
	return img, s.frames
}
