// migrations はサーバーを起動せずにテーブルだけを作成・更新するためのコマンドです。
package main

import (
	"rpsserver/database"
	"rpsserver/utils"

	"go.uber.org/zap"
)

var tables = []string{"players", "games", "game_rounds"}

func main() {
	logger, err := utils.InitLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	logger.Info("マイグレーションを開始します")

	config, err := database.LoadConfig()
	if err != nil {
		logger.Fatal("設定の読み込みに失敗しました", zap.Error(err))
	}

	db, err := database.InitPostgreSQL(config, logger)
	if err != nil {
		logger.Fatal("データベースへの接続に失敗しました", zap.Error(err))
	}

	for _, table := range tables {
		logger.Info("Table before migration", zap.String("table", table), zap.Bool("exists", db.Migrator().HasTable(table)))
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("Error migrating tables", zap.Error(err))
	}
	logger.Info("players, games, game_rounds tables migrated successfully")
}
