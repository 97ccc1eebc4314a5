// Package ffcap 通过 ffmpeg 子进程从视频源拉流并解码为原始帧
//
// 支持三类输入：rtsp:// 网络流、/dev/video* 本地设备、普通视频文件。
// ffmpeg 把画面统一缩放为固定分辨率的 YUV420P 裸流写到 stdout，
// 按帧大小切分后经通道吐出
package ffcap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ixugo/goddd/pkg/queue"
)

type (
	Config struct {
		// Input 视频源：rtsp 地址、v4l2 设备或文件路径
		Input         string
		Width, Height int
		FPS           int
		// Transport rtsp 传输协议，默认 tcp
		Transport    string
		UseWallClock bool
		HWAccel      string
	}
	FrameData struct {
		FrameNum  uint64
		Timestamp time.Time
		// Data YUV420P 裸数据，前 Width*Height 字节为亮度平面
		Data []byte
	}
	Capture struct {
		config    Config
		frameSize int
		frameCh   chan *FrameData
		errCh     chan error
		ctx       context.Context
		cancel    context.CancelFunc
		m         sync.Mutex
		started   bool
		cmd       *exec.Cmd
		lastFrame time.Time
		wg        sync.WaitGroup
		// ffmpegLog 保留最近的 stderr 输出，排障用
		ffmpegLog             *queue.CirQueue[string]
		frameCount, skipCount uint64
	}
	Stats struct {
		Input      string    `json:"input"`
		FrameCount uint64    `json:"frame_count,omitempty"`
		SkipCount  uint64    `json:"skip_count,omitempty"`
		LastFrame  time.Time `json:"last_frame"`
		FrameSize  int       `json:"frame_size"`
		IsRunning  bool      `json:"is_running"`
	}
)

func NewCapture(cfg Config) (*Capture, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid resolution: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("invalid fps: %d", cfg.FPS)
	}
	if cfg.Input == "" {
		return nil, fmt.Errorf("input is required")
	}
	if cfg.Transport == "" {
		cfg.Transport = "tcp"
	}
	// YUV420P 每帧 1.5 字节/像素
	frameSize := cfg.Width * cfg.Height * 3 / 2
	ctx, cancel := context.WithCancel(context.Background())
	return &Capture{
		config:    cfg,
		frameSize: frameSize,
		frameCh:   make(chan *FrameData, 10),
		errCh:     make(chan error, 1),
		ctx:       ctx,
		cancel:    cancel,
		ffmpegLog: queue.NewCirQueue[string](100),
	}, nil
}

func (c *Capture) FrameSize() int {
	return c.frameSize
}

func (c *Capture) buildFFmpegArgs() []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-threads", "2",
	}
	if c.config.HWAccel != "" {
		args = append(args, "-hwaccel", c.config.HWAccel)
	}

	switch {
	case strings.HasPrefix(c.config.Input, "rtsp://"):
		args = append(args,
			"-avoid_negative_ts", "make_zero",
			"-fflags", "+genpts+discardcorrupt",
			"-rtsp_transport", c.config.Transport,
			"-timeout", "10000000",
		)
		if c.config.UseWallClock {
			args = append(args, "-use_wallclock_as_timestamps", "1")
		}
	case strings.HasPrefix(c.config.Input, "/dev/video"):
		args = append(args,
			"-f", "v4l2",
			"-framerate", strconv.Itoa(c.config.FPS),
		)
	default:
		// 文件输入按源帧率实时吐帧，避免瞬间读完
		args = append(args, "-re")
	}
	args = append(args, "-i", c.config.Input)

	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(c.config.FPS),
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", c.config.FPS, c.config.Width, c.config.Height),
		"pipe:1",
	)
	return args
}

func (c *Capture) Start() error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.started {
		return fmt.Errorf("capture already started")
	}

	args := c.buildFFmpegArgs()
	c.cmd = exec.CommandContext(c.ctx, "ffmpeg", args...)
	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	c.started = true
	c.lastFrame = time.Now()

	c.wg.Go(func() { c.captureLoop(stdout) })
	c.wg.Go(func() { c.readStderr(stderr) })
	return nil
}

// captureLoop 从 ffmpeg 的 stdout 读取原始视频帧数据
// 输出为固定大小的 YUV420P 帧，按帧大小整块读取
func (c *Capture) captureLoop(stdout io.Reader) {
	defer close(c.frameCh)

	reader := bufio.NewReaderSize(stdout, c.frameSize*10)
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		frameBytes := make([]byte, c.frameSize)
		n, err := io.ReadFull(reader, frameBytes)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				select {
				case c.errCh <- fmt.Errorf("ffmpeg stream ended: %w", err):
				default:
				}
				return
			}
			select {
			case c.errCh <- fmt.Errorf("failed to read frame: %w", err):
			default:
				return
			}
		}
		if n != c.frameSize {
			select {
			case c.errCh <- fmt.Errorf("incomplete frame: %d != %d", n, c.frameSize):
			default:
			}
			return
		}

		frameNum := atomic.AddUint64(&c.frameCount, 1)
		now := time.Now()
		c.m.Lock()
		c.lastFrame = now
		c.m.Unlock()

		// 下游取帧不及时就丢当前帧，保证拉流端不被拖慢
		select {
		case c.frameCh <- &FrameData{FrameNum: frameNum, Timestamp: now, Data: frameBytes}:
		case <-c.ctx.Done():
			return
		default:
			atomic.AddUint64(&c.skipCount, 1)
		}
	}
}

// readStderr 读取 ffmpeg 的 stderr 输出用于日志记录
func (c *Capture) readStderr(stderr io.Reader) {
	scan := bufio.NewScanner(stderr)
	for scan.Scan() {
		c.ffmpegLog.Push(scan.Text())
	}
}

func (c *Capture) Frames() <-chan *FrameData {
	return c.frameCh
}

func (c *Capture) Error() <-chan error {
	return c.errCh
}

func (c *Capture) Log() []string {
	return c.ffmpegLog.Range()
}

func (c *Capture) GetFrame(timeout time.Duration) (*FrameData, error) {
	select {
	case f, ok := <-c.frameCh:
		if !ok {
			return nil, fmt.Errorf("frame channel closed")
		}
		return f, nil
	case err := <-c.errCh:
		return nil, err
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout")
	}
}

func (c *Capture) Stop() error {
	c.m.Lock()
	if !c.started {
		c.m.Unlock()
		return nil
	}
	c.m.Unlock()
	if cancel := c.cancel; cancel != nil {
		cancel()
	}
	c.wg.Wait()

	if c.cmd != nil && c.cmd.Process != nil {
		done := make(chan error, 1)
		defer close(done)
		go func() {
			done <- c.cmd.Wait()
		}()

		select {
		case <-time.After(5 * time.Second):
			if err := c.cmd.Process.Kill(); err != nil {
				return fmt.Errorf("failed to kill ffmpeg: %w", err)
			}
			<-done
		case <-done:
		}
	}
	return nil
}

func (c *Capture) GetStats() Stats {
	c.m.Lock()
	defer c.m.Unlock()
	return Stats{
		Input:      c.config.Input,
		FrameCount: atomic.LoadUint64(&c.frameCount),
		SkipCount:  atomic.LoadUint64(&c.skipCount),
		LastFrame:  c.lastFrame,
		FrameSize:  c.frameSize,
		IsRunning:  c.started,
	}
}
