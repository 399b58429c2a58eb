package models

import "time"

// Game は完了したゲーム。作成後は変更しない
type Game struct {
	ID            uint   `gorm:"primaryKey"`
	PlayerID      uint   `gorm:"not null;index"`
	Rounds        int    `gorm:"not null"`
	PlayerScore   int    `gorm:"not null"`
	ComputerScore int    `gorm:"not null"`
	Result        string `gorm:"size:16;not null"` // WIN, LOSE, TIE
	CreatedAt     time.Time
	RoundsData    []GameRound `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"` // ゲーム削除時にラウンドも削除
}

// GameRound はゲーム内の1ラウンド
type GameRound struct {
	ID             uint   `gorm:"primaryKey"`
	GameID         uint   `gorm:"not null;index"`
	RoundNumber    int    `gorm:"not null"`
	PlayerChoice   string `gorm:"size:16;not null"` // ROCK, PAPER, SCISSORS
	ComputerChoice string `gorm:"size:16;not null"`
	Result         string `gorm:"size:16;not null"`
	CreatedAt      time.Time
}

// Stats はプレイヤーの通算成績
type Stats struct {
	TotalGames int64
	Wins       int64
	Losses     int64
	Ties       int64
	WinRate    float64
}
