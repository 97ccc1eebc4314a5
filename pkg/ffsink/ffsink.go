// Package ffsink 通过 ffmpeg 子进程把原始帧编码落盘
//
// 与 ffcap 相反方向：YUV420P 裸帧写入 stdin，
// ffmpeg 按 H.264 编码进 mp4/mkv 容器
package ffsink

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/ixugo/goddd/pkg/queue"
)

type (
	Config struct {
		Path          string
		Format        string
		Width, Height int
		FPS           int
		// Gray 为真时输入按单字节亮度平面处理
		Gray bool
	}
	Encoder struct {
		config    Config
		frameSize int
		cmd       *exec.Cmd
		stdin     io.WriteCloser
		wg        sync.WaitGroup
		ffmpegLog *queue.CirQueue[string]
		written   int
	}
)

func NewEncoder(cfg Config) (*Encoder, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid resolution: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("invalid fps: %d", cfg.FPS)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if cfg.Format == "" {
		cfg.Format = "mp4"
	}

	frameSize := cfg.Width * cfg.Height * 3 / 2
	if cfg.Gray {
		frameSize = cfg.Width * cfg.Height
	}
	e := &Encoder{
		config:    cfg,
		frameSize: frameSize,
		ffmpegLog: queue.NewCirQueue[string](100),
	}
	if err := e.start(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Encoder) buildFFmpegArgs() []string {
	pixFmt := "yuv420p"
	if e.config.Gray {
		pixFmt = "gray"
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", pixFmt,
		"-s", fmt.Sprintf("%dx%d", e.config.Width, e.config.Height),
		"-r", strconv.Itoa(e.config.FPS),
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
	}
	if e.config.Format == "mp4" {
		// 让 moov 前置，录完即可边下边播
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, "-f", containerOf(e.config.Format), e.config.Path)
	return args
}

// containerOf 把文件格式映射为 ffmpeg muxer 名
func containerOf(format string) string {
	switch format {
	case "mkv":
		return "matroska"
	default:
		return format
	}
}

func (e *Encoder) start() error {
	e.cmd = exec.Command("ffmpeg", e.buildFFmpegArgs()...)
	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stderr, err := e.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := e.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	e.stdin = stdin

	e.wg.Go(func() {
		scan := bufio.NewScanner(stderr)
		for scan.Scan() {
			e.ffmpegLog.Push(scan.Text())
		}
	})
	return nil
}

func (e *Encoder) FrameSize() int {
	return e.frameSize
}

// Write 写入一帧裸数据，长度必须等于 FrameSize
func (e *Encoder) Write(data []byte) error {
	if len(data) != e.frameSize {
		return fmt.Errorf("frame size mismatch: %d != %d", len(data), e.frameSize)
	}
	if _, err := e.stdin.Write(data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	e.written++
	return nil
}

func (e *Encoder) Written() int {
	return e.written
}

func (e *Encoder) Log() []string {
	return e.ffmpegLog.Range()
}

// Close 关闭 stdin 让 ffmpeg 收尾写出容器索引，并等待进程退出
func (e *Encoder) Close() error {
	if err := e.stdin.Close(); err != nil {
		return fmt.Errorf("failed to close stdin: %w", err)
	}
	e.wg.Wait()

	done := make(chan error, 1)
	defer close(done)
	go func() {
		done <- e.cmd.Wait()
	}()

	select {
	case <-time.After(10 * time.Second):
		if err := e.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill ffmpeg: %w", err)
		}
		<-done
		return fmt.Errorf("ffmpeg did not finalize in time")
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ffmpeg exited abnormally: %w", err)
		}
	}
	return nil
}
