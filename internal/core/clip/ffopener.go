package clip

import (
	"github.com/gowvp/kite/internal/core/frame"
	"github.com/gowvp/kite/pkg/ffsink"
)

// FFOpener 基于 ffmpeg 编码器的落盘资源工厂
type FFOpener struct{}

func (FFOpener) Open(path, format string, fps int, color bool, width, height int) (SinkWriter, error) {
	enc, err := ffsink.NewEncoder(ffsink.Config{
		Path:   path,
		Format: format,
		Width:  width,
		Height: height,
		FPS:    fps,
		Gray:   !color,
	})
	if err != nil {
		return nil, err
	}
	return &ffSinkWriter{enc: enc}, nil
}

type ffSinkWriter struct {
	enc *ffsink.Encoder
}

func (w *ffSinkWriter) Write(f *frame.Frame) error {
	return w.enc.Write(f.Data)
}

func (w *ffSinkWriter) Close() error {
	return w.enc.Close()
}
