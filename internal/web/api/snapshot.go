package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/kite/internal/core/snapshot"
	"github.com/ixugo/goddd/pkg/web"
)

// SnapshotAPI 为 http 提供长曝光快照
type SnapshotAPI struct {
	snapshotCore snapshot.Core
	uc           *Usecase
}

func NewSnapshotAPI(core snapshot.Core) SnapshotAPI {
	return SnapshotAPI{snapshotCore: core}
}

func RegisterSnapshot(g gin.IRouter, api SnapshotAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/snapshots", handler...)
	group.POST("", web.WrapH(api.takeSnapshot))
}

type takeSnapshotInput struct {
	// Exposure 曝光秒数，缺省 1 秒
	Exposure float64 `json:"exposure"`
}

// takeSnapshot 曝光指定时长并叠加输出灰度快照
// 请求会阻塞到曝光结束
func (a SnapshotAPI) takeSnapshot(c *gin.Context, in *takeSnapshotInput) (*snapshot.Result, error) {
	exposure := time.Duration(in.Exposure * float64(time.Second))
	return a.snapshotCore.Take(c.Request.Context(), exposure)
}
