package clip

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/system"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/gorm"
)

// StartCleanupWorker 启动定时清理协程
// 程序启动时执行一次清理，随后每 60 分钟执行一次
func (c Core) StartCleanupWorker() {
	if c.conf == nil || c.conf.RetainDays <= 0 {
		slog.Info("clip cleanup disabled")
		return
	}

	slog.Info("clip cleanup worker started",
		"retain_days", c.conf.RetainDays,
		"storage_dir", c.conf.StorageDir,
	)

	c.cleanupExpiredClips()

	ticker := time.NewTicker(60 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanupExpiredClips()
	}
}

// cleanupExpiredClips 清理超过保留天数的片段
func (c Core) cleanupExpiredClips() {
	ctx := context.Background()
	cutoffTime := time.Now().AddDate(0, 0, -c.conf.RetainDays)

	totalDeleted, filesDeleted, failedFiles, freedBytes := c.batchDeleteClips(ctx,
		orm.Where("started_at < ?", orm.Time{Time: cutoffTime}),
	)

	if totalDeleted > 0 || failedFiles > 0 {
		slog.Info("expired clip cleanup completed",
			"retain_days", c.conf.RetainDays,
			"cutoff_time", cutoffTime.Format(time.DateTime),
			"clips_deleted", totalDeleted,
			"files_deleted", filesDeleted,
			"failed_files", failedFiles,
			"freed_bytes", freedBytes,
		)
	}
}

// batchDeleteClips 批量删除片段（文件+数据库记录）
func (c Core) batchDeleteClips(ctx context.Context, conditions ...orm.QueryOption) (totalDeleted, filesDeleted, failedFiles int, freedBytes int64) {
	batchSize := 100

	for {
		var clips []*Clip
		pager := web.PagerFilter{Page: 1, Size: batchSize}
		_, err := c.store.Clip().Find(ctx, &clips, &pager, conditions...)
		if err != nil || len(clips) == 0 {
			break
		}

		var deleteIDs []int64
		var batchFreed int64
		var batchFilesDeleted, batchFailed int

		for _, rec := range clips {
			filePath := c.GetFullPath(rec.Path)
			if err := os.Remove(filePath); err != nil {
				if !os.IsNotExist(err) {
					batchFailed++
				}
			} else {
				batchFilesDeleted++
				batchFreed += rec.Size
			}
			deleteIDs = append(deleteIDs, rec.ID)
		}

		if len(deleteIDs) > 0 {
			err = c.store.Clip().Session(ctx, func(tx *gorm.DB) error {
				return tx.Where("id IN ?", deleteIDs).Delete(&Clip{}).Error
			})
			if err != nil {
				// 删除失败继续循环会反复拿到同一批记录
				slog.Error("批量删除片段记录失败", "err", err)
				break
			}
			totalDeleted += len(deleteIDs)
		}

		filesDeleted += batchFilesDeleted
		failedFiles += batchFailed
		freedBytes += batchFreed
	}

	if c.conf != nil && c.conf.StorageDir != "" {
		absStorageDir := c.conf.StorageDir
		if !filepath.IsAbs(absStorageDir) {
			absStorageDir = filepath.Join(system.Getwd(), absStorageDir)
		}
		cleanupEmptyDirs(absStorageDir)
	}

	return
}

// cleanupEmptyDirs 递归删除空目录
func cleanupEmptyDirs(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			subDir := filepath.Join(dir, entry.Name())
			cleanupEmptyDirs(subDir)

			subEntries, err := os.ReadDir(subDir)
			if err == nil && len(subEntries) == 0 {
				_ = os.Remove(subDir)
			}
		}
	}
}
