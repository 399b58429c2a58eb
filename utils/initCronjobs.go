package utils

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// IdlePlayerPurger は一度もゲームを完了していないプレイヤーを削除できるストア
type IdlePlayerPurger interface {
	PurgeIdlePlayers(ctx context.Context, olderThan time.Time) (int64, error)
}

// CronCleaner は定期クリーンアップのジョブを登録して開始します。停止は呼び出し側で行います。
func CronCleaner(store IdlePlayerPurger, schedule string, maxAge time.Duration, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		PurgeIdlePlayers(context.Background(), store, maxAge, logger)
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	logger.Info("Cron cleaner started", zap.String("schedule", schedule), zap.Duration("maxAge", maxAge))
	return c, nil
}

// PurgeIdlePlayers は maxAge より古い、ゲーム記録の無いプレイヤーを削除します。
func PurgeIdlePlayers(ctx context.Context, store IdlePlayerPurger, maxAge time.Duration, logger *zap.Logger) {
	logger.Info("未使用プレイヤーを削除する処理を開始")
	removed, err := store.PurgeIdlePlayers(ctx, time.Now().Add(-maxAge))
	if err != nil {
		logger.Error("未使用プレイヤーの削除に失敗しました", zap.Error(err))
		return
	}
	logger.Info("未使用プレイヤーの削除完了", zap.Int64("players_deleted", removed))
}
