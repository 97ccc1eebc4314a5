package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/kite/internal/core/clip"
	"github.com/grafov/m3u8"
	"github.com/ixugo/goddd/pkg/web"
)

// ClipAPI 为 http 提供业务方法
type ClipAPI struct {
	clipCore clip.Core
	uc       *Usecase
}

func NewClipAPI(core clip.Core) ClipAPI {
	return ClipAPI{clipCore: core}
}

func RegisterClip(g gin.IRouter, api ClipAPI, handler ...gin.HandlerFunc) {
	{
		group := g.Group("/clips", handler...)
		// 事件触发与生命周期
		group.POST("/events", web.WrapH(api.startEvent))
		group.GET("/events", web.WrapH(api.findSessions))
		group.POST("/events/:id/finish", web.WrapH(api.finishEvent))
		group.DELETE("/events/:id", web.WrapH(api.terminateEvent))
		// 片段元数据
		group.GET("", web.WrapH(api.findClips))
		group.GET("/timeline", web.WrapH(api.getTimeline))
		// HLS 播放列表（根据时间范围生成 m3u8）
		group.GET("/playlist.m3u8", api.playlist)
		group.GET("/:id", web.WrapH(api.getClip))
		group.DELETE("/:id", web.WrapH(api.delClip))
		group.GET("/:id/download", api.downloadClip)
	}

	// 静态文件服务，用于访问片段文件
	// Gin Static 支持 HTTP Range 请求，实现边下载边播放
	if api.uc != nil && api.uc.Conf.Clip.StorageDir != "" {
		slog.Info("注册片段静态文件服务", "path", "/static/clips", "dir", api.uc.Conf.Clip.StorageDir)
		g.Static("/static/clips", api.uc.Conf.Clip.StorageDir)
	}
}

// startEvent 触发录制事件
func (a ClipAPI) startEvent(c *gin.Context, in *clip.TriggerEventInput) (*clip.Session, error) {
	return a.clipCore.StartEvent(c.Request.Context(), in)
}

// finishEvent 正常结束事件，连续模式阻塞到文件完整落盘
func (a ClipAPI) finishEvent(c *gin.Context, _ *struct{}) (any, error) {
	if err := a.clipCore.FinishEvent(c.Request.Context(), c.Param("id")); err != nil {
		return nil, err
	}
	return gin.H{"msg": "ok"}, nil
}

// terminateEvent 放弃事件，丢弃在途输出
func (a ClipAPI) terminateEvent(c *gin.Context, _ *struct{}) (any, error) {
	if err := a.clipCore.TerminateEvent(c.Request.Context(), c.Param("id")); err != nil {
		return nil, err
	}
	return gin.H{"msg": "ok"}, nil
}

// findSessions 在途事件列表
func (a ClipAPI) findSessions(_ *gin.Context, _ *struct{}) (any, error) {
	items := a.clipCore.Sessions()
	return gin.H{"items": items, "total": len(items)}, nil
}

// findClips 分页查询片段列表
func (a ClipAPI) findClips(c *gin.Context, in *clip.FindClipInput) (any, error) {
	items, total, err := a.clipCore.FindClips(c.Request.Context(), in)
	return gin.H{"items": items, "total": total}, err
}

// getTimeline 获取时间轴数据
func (a ClipAPI) getTimeline(c *gin.Context, in *clip.TimelineInput) (any, error) {
	items, err := a.clipCore.GetTimeline(c.Request.Context(), in)
	return gin.H{"items": items}, err
}

func (a ClipAPI) getClip(c *gin.Context, _ *struct{}) (*clip.Clip, error) {
	clipID, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	return a.clipCore.GetClip(c.Request.Context(), clipID)
}

func (a ClipAPI) delClip(c *gin.Context, _ *struct{}) (*clip.Clip, error) {
	clipID, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	return a.clipCore.DelClip(c.Request.Context(), clipID)
}

// downloadClip 下载片段文件
func (a ClipAPI) downloadClip(c *gin.Context) {
	clipID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 1, "msg": "invalid clip id"})
		return
	}

	rec, err := a.clipCore.GetClip(c.Request.Context(), clipID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": 1, "msg": err.Error()})
		return
	}

	filePath := a.clipCore.GetFullPath(rec.Path)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		c.JSON(http.StatusNotFound, gin.H{"code": 1, "msg": "clip file not found"})
		return
	}

	fileName := filepath.Base(filePath)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", fileName))
	c.File(filePath)
}

// playlist 生成 HLS m3u8 播放列表
// 根据时间范围动态生成包含多个片段的 m3u8 文件
// 路径: /clips/playlist.m3u8?start_ms=xxx&end_ms=xxx
func (a ClipAPI) playlist(c *gin.Context) {
	startMs, _ := strconv.ParseInt(c.Query("start_ms"), 10, 64)
	endMs, _ := strconv.ParseInt(c.Query("end_ms"), 10, 64)
	if startMs <= 0 || endMs <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": 1, "msg": "start_ms and end_ms are required"})
		return
	}

	clips, _, err := a.clipCore.FindClips(c.Request.Context(), &clip.FindClipInput{
		State:       clip.StateSaved,
		PagerFilter: web.PagerFilter{Page: 1, Size: 10000},
		DateFilter:  web.DateFilter{StartMs: startMs, EndMs: endMs},
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 1, "msg": err.Error()})
		return
	}
	if len(clips) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"code": 1, "msg": "no clips found in time range"})
		return
	}

	content := generateM3U8(clips)
	c.Header("Content-Type", "application/vnd.apple.mpegurl")
	c.Header("Cache-Control", "no-cache")
	c.String(http.StatusOK, content)
}

// generateM3U8 根据片段列表生成 m3u8 播放列表
func generateM3U8(clips []*clip.Clip) string {
	count := len(clips)
	if count == 0 {
		return ""
	}

	// winSize=0 表示 VOD，不使用滑动窗口
	pl, err := m3u8.NewMediaPlaylist(0, uint(count))
	if err != nil {
		return ""
	}
	pl.MediaType = m3u8.VOD

	// 按开始时间升序排列
	sorted := make([]*clip.Clip, len(clips))
	copy(sorted, clips)
	for i := 0; i < len(sorted)-1; i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i].StartedAt.After(sorted[j].StartedAt.Time) {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	// 每个片段都是独立编码的文件，时间戳从 0 开始，
	// 片段之间必须加 DISCONTINUITY 让播放器重置解码器
	for i, rec := range sorted {
		if i > 0 {
			pl.SetDiscontinuity()
		}
		_ = pl.Append("/static/clips/"+rec.Path, rec.Duration, "")
	}

	pl.Close()
	return pl.String()
}
