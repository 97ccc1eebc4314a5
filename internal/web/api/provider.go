package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/gowvp/kite/internal/conf"
	"github.com/gowvp/kite/internal/core/capture"
	"github.com/gowvp/kite/internal/core/clip"
	"github.com/gowvp/kite/internal/core/clip/store/clipdb"
	"github.com/gowvp/kite/internal/core/snapshot"
	"github.com/gowvp/kite/pkg/ffcap"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/gorm"
)

var ProviderSet = wire.NewSet(
	wire.Struct(new(Usecase), "*"),
	NewHTTPHandler,
	NewCapture,
	NewEngine,
	NewClipStore, NewClipCore, NewClipAPI,
	NewSnapshotCore, NewSnapshotAPI,
)

type Usecase struct {
	Conf    *conf.Bootstrap
	DB      *gorm.DB
	Capture *ffcap.Capture

	ClipAPI     ClipAPI
	SnapshotAPI SnapshotAPI
}

// NewHTTPHandler 生成Gin框架路由内容
func NewHTTPHandler(uc *Usecase) http.Handler {
	cfg := uc.Conf.Server
	if !uc.Conf.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.New()
	// 如果启用了 Pprof，设置 Pprof 监控
	if cfg.HTTP.PProf.Enabled {
		web.SetupPProf(g, &cfg.HTTP.PProf.AccessIps)
	}

	setupRouter(g, uc)
	return g
}

// NewCapture 创建并启动 ffmpeg 拉流进程
func NewCapture(c *conf.Bootstrap) (*ffcap.Capture, func(), error) {
	cap, err := ffcap.NewCapture(ffcap.Config{
		Input:        c.Capture.Input,
		Width:        c.Capture.Width,
		Height:       c.Capture.Height,
		FPS:          c.Capture.FPS,
		Transport:    c.Capture.Transport,
		UseWallClock: c.Capture.UseWallClock,
		HWAccel:      c.Capture.HWAccel,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := cap.Start(); err != nil {
		return nil, nil, err
	}
	return cap, func() { _ = cap.Stop() }, nil
}

// NewEngine 创建录制引擎，采集源与编码落盘都走 ffmpeg
// 启动推迟到 NewClipCore，结果回调注册完才开始消费
func NewEngine(c *conf.Bootstrap, cap *ffcap.Capture) *clip.Engine {
	src := capture.NewFFSource(cap, c.Capture.Width, c.Capture.Height)
	return clip.NewEngine(src, clip.FFOpener{}, clip.EngineConfig{
		Capacity:     c.Buffer.Capacity,
		IdleInterval: c.Buffer.IdleInterval.Duration(),
		MaxFrames:    c.Clip.MaxFrames,
		StorageDir:   c.Clip.StorageDir,
		Format:       c.Clip.Format,
		FPS:          c.Capture.FPS,
		Color:        true,
	})
}

// NewClipStore 创建片段元数据存储层
func NewClipStore(db *gorm.DB) clip.Storer {
	return clipdb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate())
}

// NewClipCore 创建片段管理核心服务并启动录制引擎
// NewCore 注册结果入库回调，之后引擎才开始消费帧
func NewClipCore(store clip.Storer, engine *clip.Engine, c *conf.Bootstrap) (clip.Core, func(), error) {
	core := clip.NewCore(store, engine, &c.Clip)
	if err := engine.Start(); err != nil {
		return clip.Core{}, nil, err
	}

	// 启动过期清理协程
	go core.StartCleanupWorker()

	return core, engine.Close, nil
}

func NewSnapshotCore(engine *clip.Engine, c *conf.Bootstrap) snapshot.Core {
	return snapshot.NewCore(engine, &c.Snapshot)
}
