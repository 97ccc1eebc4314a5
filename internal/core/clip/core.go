package clip

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gowvp/kite/internal/conf"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/system"
	"github.com/jinzhu/copier"
	"gorm.io/gorm"
)

// ClipStorer Instantiation interface
type ClipStorer interface {
	Find(context.Context, *[]*Clip, orm.Pager, ...orm.QueryOption) (int64, error)
	Get(context.Context, *Clip, ...orm.QueryOption) error
	Add(context.Context, *Clip) error
	Del(context.Context, *Clip, ...orm.QueryOption) error
	Session(context.Context, ...func(*gorm.DB) error) error
}

// Storer data persistence
type Storer interface {
	Clip() ClipStorer
}

// Core business domain
type Core struct {
	store  Storer
	conf   *conf.Clip
	engine *Engine
}

// NewCore create business domain
// 引擎的录制结果回调指向 Core 入库
func NewCore(store Storer, engine *Engine, cfg *conf.Clip) Core {
	c := Core{store: store, conf: cfg, engine: engine}
	engine.SetOnDone(c.saveResult)
	return c
}

// Engine 暴露引擎给装配层启停
func (c Core) Engine() *Engine {
	return c.engine
}

// StartEvent 触发录制事件
func (c Core) StartEvent(ctx context.Context, in *TriggerEventInput) (*Session, error) {
	var (
		s   *Session
		err error
	)
	switch in.Mode {
	case ModeBounded:
		s, err = c.engine.TriggerBounded(in.Name)
	case ModeContinuous, "":
		s, err = c.engine.TriggerContinuous(in.Name)
	default:
		return nil, reason.ErrBadRequest.Withf("unknown mode [%s]", in.Mode)
	}
	if err != nil {
		slog.ErrorContext(ctx, "触发录制失败", "mode", in.Mode, "err", err)
		return nil, reason.ErrServer.Withf("trigger err[%s]", err.Error())
	}
	return s, nil
}

// FinishEvent 正常结束事件
// 连续模式返回时文件已完整写出
func (c Core) FinishEvent(ctx context.Context, eventID string) error {
	if err := c.engine.Finish(eventID); err != nil {
		if err == ErrNotRecording {
			return reason.ErrNotFound.Withf("event [%s] not recording", eventID)
		}
		slog.ErrorContext(ctx, "结束事件失败", "event_id", eventID, "err", err)
		return reason.ErrServer.Withf("finish err[%s]", err.Error())
	}
	return nil
}

// TerminateEvent 放弃事件，丢弃在途输出
func (c Core) TerminateEvent(_ context.Context, eventID string) error {
	if err := c.engine.Terminate(eventID); err != nil {
		if err == ErrNotRecording {
			return reason.ErrNotFound.Withf("event [%s] not recording", eventID)
		}
		return reason.ErrServer.Withf("terminate err[%s]", err.Error())
	}
	return nil
}

// Sessions 在途事件
func (c Core) Sessions() []*Session {
	return c.engine.Sessions()
}

// saveResult 录制结果入库，由引擎回调
// 入库失败只记日志，文件本身已经落盘
func (c Core) saveResult(res Result) {
	ctx := context.Background()

	in := AddClipInput{
		EventID: res.EventID,
		Mode:    res.Mode,
		Name:    res.Name,
		// 入库存相对存储目录的文件名，静态服务与下载按目录拼接
		Path:      filepath.Base(res.Path),
		Format:    res.Format,
		Frames:    res.Frames,
		Width:     res.Width,
		Height:    res.Height,
		FPS:       res.FPS,
		State:     res.State,
		Reason:    res.Reason,
		StartedAt: orm.Time{Time: res.StartedAt},
		EndedAt:   orm.Time{Time: res.EndedAt},
	}
	if res.FPS > 0 {
		in.Duration = float64(res.Frames) / float64(res.FPS)
	}
	if res.State == StateSaved {
		if fi, err := os.Stat(res.Path); err == nil {
			in.Size = fi.Size()
		}
	}

	var out Clip
	if err := copier.Copy(&out, &in); err != nil {
		slog.Error("Copy", "err", err)
	}
	out.CreatedAt = orm.Now()
	out.UpdatedAt = orm.Now()
	if err := c.store.Clip().Add(ctx, &out); err != nil {
		slog.Error("片段入库失败", "event_id", res.EventID, "path", res.Path, "err", err)
		return
	}
	slog.Info("片段已入库",
		"event_id", res.EventID,
		"state", res.State,
		"frames", res.Frames,
		"path", res.Path,
	)
}

// FindClips 分页查询片段列表，支持模式、状态与时间范围筛选
func (c Core) FindClips(ctx context.Context, in *FindClipInput) ([]*Clip, int64, error) {
	query := orm.NewQuery(4).OrderBy("started_at DESC")

	if in.Mode != "" {
		query.Where("mode = ?", in.Mode)
	}
	if in.State != "" {
		query.Where("state = ?", in.State)
	}
	if in.Name != "" {
		query.Where("name = ?", in.Name)
	}
	if in.StartMs > 0 && in.EndMs > 0 {
		query.Where("started_at >= ? AND ended_at <= ?", in.StartAt(), in.EndAt())
	}

	items := make([]*Clip, 0, in.Limit())
	total, err := c.store.Clip().Find(ctx, &items, in, query.Encode()...)
	if err != nil {
		return nil, 0, reason.ErrDB.Withf(`Find in[%+v] err[%s]`, in, err.Error())
	}
	return items, total, nil
}

// GetTimeline 获取时间轴数据，返回指定时间范围内与之重叠的已保存片段时段
func (c Core) GetTimeline(ctx context.Context, in *TimelineInput) ([]TimeRange, error) {
	if in.StartMs <= 0 || in.EndMs <= 0 {
		return nil, reason.ErrBadRequest.Withf("start_ms and end_ms are required")
	}

	query := orm.NewQuery(3).OrderBy("started_at ASC")
	query.Where("state = ?", StateSaved)
	// 查询与时间范围有重叠的片段
	query.Where("started_at < ? AND ended_at > ?", in.EndAt(), in.StartAt())
	if in.Mode != "" {
		query.Where("mode = ?", in.Mode)
	}

	var clips []*Clip
	// 使用默认分页器避免 nil pointer
	pager := &defaultPager{limit: 1000}
	if _, err := c.store.Clip().Find(ctx, &clips, pager, query.Encode()...); err != nil {
		return nil, reason.ErrDB.Withf(`GetTimeline err[%s]`, err.Error())
	}

	result := make([]TimeRange, 0, len(clips))
	for _, r := range clips {
		result = append(result, TimeRange{
			ID:       r.ID,
			Mode:     r.Mode,
			StartMs:  r.StartedAt.UnixMilli(),
			EndMs:    r.EndedAt.UnixMilli(),
			Duration: r.Duration,
		})
	}
	return result, nil
}

// defaultPager 内部使用的分页器，避免传入 nil 导致空指针
type defaultPager struct {
	limit int
}

func (p *defaultPager) Offset() int { return 0 }
func (p *defaultPager) Limit() int  { return p.limit }

// GetClip Query a single object
func (c Core) GetClip(ctx context.Context, id int64) (*Clip, error) {
	out := Clip{ID: id}
	if err := c.store.Clip().Get(ctx, &out, orm.Where("id=?", id)); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`Get id[%v] err[%s]`, id, err.Error())
		}
		return nil, reason.ErrDB.Withf(`Get id[%v] err[%s]`, id, err.Error())
	}
	return &out, nil
}

// DelClip 删除片段（文件 + 数据库记录）
// 文件删除失败只记日志，记录仍然删除
func (c Core) DelClip(ctx context.Context, id int64) (*Clip, error) {
	out, err := c.GetClip(ctx, id)
	if err != nil {
		return nil, err
	}
	if out.Path != "" {
		if err := os.Remove(c.GetFullPath(out.Path)); err != nil && !os.IsNotExist(err) {
			slog.WarnContext(ctx, "删除片段文件失败", "path", out.Path, "err", err)
		}
	}
	if err := c.store.Clip().Del(ctx, out, orm.Where("id=?", id)); err != nil {
		return nil, reason.ErrDB.Withf(`Del id[%v] err[%s]`, id, err.Error())
	}
	return out, nil
}

// GetFullPath 获取片段文件的完整路径，path 为相对存储目录的文件名
func (c Core) GetFullPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	dir := c.conf.StorageDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(system.Getwd(), dir)
	}
	return filepath.Join(dir, path)
}
