package conf

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration 支持在 toml 中以 "10s"/"1m" 形式配置时长
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Duration 返回标准库时长
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Bootstrap 程序启动配置
type Bootstrap struct {
	BuildVersion string `toml:"-"`
	Debug        bool   `toml:"debug"`

	Server   Server   `toml:"server"`
	Data     Data     `toml:"data"`
	Capture  Capture  `toml:"capture"`
	Buffer   Buffer   `toml:"buffer"`
	Clip     Clip     `toml:"clip"`
	Snapshot Snapshot `toml:"snapshot"`
}

type Server struct {
	HTTP HTTP `toml:"http"`
	RPC  RPC  `toml:"rpc"`
}

type HTTP struct {
	Port  int   `toml:"port"`
	PProf PProf `toml:"pprof"`
}

type PProf struct {
	Enabled   bool     `toml:"enabled"`
	AccessIps []string `toml:"access_ips"`
}

type RPC struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

type Data struct {
	Database Database `toml:"database"`
}

type Database struct {
	// Dsn 以 postgres/mysql 开头时使用对应驱动，否则视为 sqlite 文件路径
	Dsn             string   `toml:"dsn"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
	SlowThreshold   Duration `toml:"slow_threshold"`
}

// Capture 采集源配置，Input 为 rtsp 地址或本地设备路径
type Capture struct {
	Input        string `toml:"input"`
	Width        int    `toml:"width"`
	Height       int    `toml:"height"`
	FPS          int    `toml:"fps"`
	Transport    string `toml:"transport"`
	HWAccel      string `toml:"hwaccel"`
	UseWallClock bool   `toml:"use_wallclock"`
}

// Buffer 滚动历史缓冲配置
type Buffer struct {
	// Capacity 保留在内存中的最近帧数量，触发录制时作为前置片段写入
	Capacity int `toml:"capacity"`
	// IdleInterval 连续录制写协程空轮询的休眠间隔
	IdleInterval Duration `toml:"idle_interval"`
}

// Clip 片段录制配置
type Clip struct {
	StorageDir string `toml:"storage_dir"`
	// Format 输出封装格式，如 mp4、mkv
	Format string `toml:"format"`
	// MaxFrames 短片段模式的帧数上限，超出则整段丢弃
	MaxFrames  int `toml:"max_frames"`
	RetainDays int `toml:"retain_days"`
}

type Snapshot struct {
	OutputDir string `toml:"output_dir"`
}

// Load 从 toml 文件加载配置并填充默认值
func Load(path string) (*Bootstrap, error) {
	var bc Bootstrap
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, &bc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	bc.SetDefault()
	return &bc, nil
}

// SetDefault 填充缺省配置
func (bc *Bootstrap) SetDefault() {
	if bc.Server.HTTP.Port <= 0 {
		bc.Server.HTTP.Port = 8080
	}
	if bc.Server.RPC.Port <= 0 {
		bc.Server.RPC.Port = 50051
	}
	if bc.Data.Database.Dsn == "" {
		bc.Data.Database.Dsn = "kite.db"
	}
	if bc.Data.Database.MaxIdleConns <= 0 {
		bc.Data.Database.MaxIdleConns = 2
	}
	if bc.Data.Database.MaxOpenConns <= 0 {
		bc.Data.Database.MaxOpenConns = 10
	}
	if bc.Data.Database.ConnMaxLifetime <= 0 {
		bc.Data.Database.ConnMaxLifetime = Duration(time.Hour)
	}
	if bc.Data.Database.SlowThreshold <= 0 {
		bc.Data.Database.SlowThreshold = Duration(200 * time.Millisecond)
	}
	if bc.Capture.Width <= 0 {
		bc.Capture.Width = 1280
	}
	if bc.Capture.Height <= 0 {
		bc.Capture.Height = 720
	}
	if bc.Capture.FPS <= 0 {
		bc.Capture.FPS = 25
	}
	if bc.Capture.Transport == "" {
		bc.Capture.Transport = "tcp"
	}
	if bc.Buffer.Capacity <= 0 {
		bc.Buffer.Capacity = 64
	}
	if bc.Buffer.IdleInterval <= 0 {
		bc.Buffer.IdleInterval = Duration(time.Second)
	}
	if bc.Clip.StorageDir == "" {
		bc.Clip.StorageDir = "./clips"
	}
	if bc.Clip.Format == "" {
		bc.Clip.Format = "mp4"
	}
	if bc.Clip.MaxFrames <= 0 {
		bc.Clip.MaxFrames = 200
	}
	if bc.Snapshot.OutputDir == "" {
		bc.Snapshot.OutputDir = "./snapshots"
	}
}
