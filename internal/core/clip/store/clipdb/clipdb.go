// Package clipdb 片段元数据的 gorm 存储实现
package clipdb

import (
	"context"
	"log/slog"

	"github.com/gowvp/kite/internal/core/clip"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var _ clip.Storer = (*DB)(nil)

type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) *DB {
	return &DB{db: db}
}

// AutoMigrate 按需建表
func (d *DB) AutoMigrate(ok bool) *DB {
	if ok {
		if err := d.db.AutoMigrate(&clip.Clip{}); err != nil {
			slog.Error("AutoMigrate", "err", err)
		}
	}
	return d
}

func (d *DB) Clip() clip.ClipStorer {
	return ClipDB{db: d.db}
}

var _ clip.ClipStorer = (*ClipDB)(nil)

type ClipDB struct {
	db *gorm.DB
}

func (c ClipDB) Find(ctx context.Context, items *[]*clip.Clip, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	db := c.db.WithContext(ctx).Model(&clip.Clip{})
	for _, opt := range opts {
		db = opt(db)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	if pager != nil {
		db = db.Offset(pager.Offset()).Limit(pager.Limit())
	}
	return total, db.Find(items).Error
}

func (c ClipDB) Get(ctx context.Context, out *clip.Clip, opts ...orm.QueryOption) error {
	db := c.db.WithContext(ctx)
	for _, opt := range opts {
		db = opt(db)
	}
	return db.First(out).Error
}

func (c ClipDB) Add(ctx context.Context, in *clip.Clip) error {
	return c.db.WithContext(ctx).Create(in).Error
}

func (c ClipDB) Del(ctx context.Context, out *clip.Clip, opts ...orm.QueryOption) error {
	db := c.db.WithContext(ctx)
	for _, opt := range opts {
		db = opt(db)
	}
	return db.Delete(out).Error
}

func (c ClipDB) Session(ctx context.Context, changes ...func(*gorm.DB) error) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, change := range changes {
			if err := change(tx); err != nil {
				return err
			}
		}
		return nil
	})
}
