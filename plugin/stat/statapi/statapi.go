package statapi

import (
	"github.com/gin-gonic/gin"
	"github.com/gowvp/kite/plugin/stat"
	"github.com/ixugo/goddd/pkg/system"
	"github.com/ixugo/goddd/pkg/web"
)

// Register 注册系统负载查询接口
func Register(r gin.IRouter) {
	r.GET("/app/stats", web.WrapH(getStats))
}

func getStats(_ *gin.Context, _ *struct{}) (*stat.Stats, error) {
	return stat.Sample(system.Getwd()), nil
}
