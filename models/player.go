package models

import "time"

const AnonymousName = "Anonymous"

// Player モデルの定義。名前の一意性は保証しない（同名の登録は最初に見つかった行を再利用）
type Player struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:64;not null;default:'Anonymous';index"`
	CreatedAt time.Time `gorm:"index"`
	Games     []Game    `gorm:"foreignKey:PlayerID"`
}
