package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"rpsserver/game"
	"rpsserver/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxNameLength は players.name に保存できる最大文字数
const MaxNameLength = 64

var (
	// ErrInvalidGame は保存しようとしたゲームに必須項目の欠落や矛盾がある場合に返されます。
	ErrInvalidGame = errors.New("invalid completed game")
	// ErrNameTooLong はプレイヤー名が players.name の長さを超える場合に返されます。
	ErrNameTooLong = fmt.Errorf("player name longer than %d characters", MaxNameLength)
)

// Store はプレイヤー・ゲーム・ラウンドの永続化を担います。
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// FindOrCreatePlayer は名前が完全一致する最初のプレイヤーを返し、無ければ作成します。
// 排他制御はしていないため、同名の同時登録では重複行ができることがあります。
func (s *Store) FindOrCreatePlayer(ctx context.Context, name string) (*models.Player, error) {
	name = normalizeName(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, ErrNameTooLong
	}

	var player models.Player
	err := s.db.WithContext(ctx).Where("name = ?", name).Order("id").First(&player).Error
	if err == nil {
		return &player, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find player: %w", err)
	}

	player = models.Player{Name: name}
	if err := s.db.WithContext(ctx).Create(&player).Error; err != nil {
		return nil, fmt.Errorf("create player: %w", err)
	}
	s.logger.Info("Player created", zap.Uint("playerID", player.ID), zap.String("name", player.Name))
	return &player, nil
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.AnonymousName
	}
	return name
}

// GetPlayer はIDでプレイヤーを取得します。見つからない場合は nil, nil を返します。
func (s *Store) GetPlayer(ctx context.Context, playerID uint) (*models.Player, error) {
	var player models.Player
	err := s.db.WithContext(ctx).First(&player, playerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get player: %w", err)
	}
	return &player, nil
}

// SaveCompletedGame は1件の games 行とラウンド数分の game_rounds 行を1トランザクションで保存します。
func (s *Store) SaveCompletedGame(ctx context.Context, completed game.CompletedGame) (*models.Game, error) {
	if err := validateCompletedGame(completed); err != nil {
		return nil, err
	}

	record := models.Game{
		PlayerID:      completed.PlayerID,
		Rounds:        completed.Rounds,
		PlayerScore:   completed.PlayerScore,
		ComputerScore: completed.ComputerScore,
		Result:        string(completed.Result),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owners int64
		if err := tx.Model(&models.Player{}).Where("id = ?", completed.PlayerID).Count(&owners).Error; err != nil {
			return err
		}
		if owners == 0 {
			return game.ErrUnknownPlayer
		}

		if err := tx.Omit("RoundsData").Create(&record).Error; err != nil {
			return err
		}

		rounds := make([]models.GameRound, 0, len(completed.History))
		for _, r := range completed.History {
			rounds = append(rounds, models.GameRound{
				GameID:         record.ID,
				RoundNumber:    r.Number,
				PlayerChoice:   string(r.PlayerChoice),
				ComputerChoice: string(r.ComputerChoice),
				Result:         string(r.Result),
			})
		}
		if err := tx.Create(&rounds).Error; err != nil {
			return err
		}
		record.RoundsData = rounds
		return nil
	})
	if errors.Is(err, game.ErrUnknownPlayer) {
		s.logger.Warn("Player removed before game was saved", zap.Uint("playerID", completed.PlayerID))
		return nil, fmt.Errorf("save completed game: %w", err)
	}
	if err != nil {
		s.logger.Error("Failed to save completed game", zap.Uint("playerID", completed.PlayerID), zap.Error(err))
		return nil, fmt.Errorf("save completed game: %w", err)
	}

	s.logger.Info("Game saved",
		zap.Uint("gameID", record.ID),
		zap.Uint("playerID", record.PlayerID),
		zap.String("result", record.Result),
	)
	return &record, nil
}

// RecordGame は game.Recorder の実装
func (s *Store) RecordGame(ctx context.Context, completed game.CompletedGame) (uint, error) {
	record, err := s.SaveCompletedGame(ctx, completed)
	if err != nil {
		return 0, err
	}
	return record.ID, nil
}

func validateCompletedGame(g game.CompletedGame) error {
	switch {
	case g.PlayerID == 0:
		return fmt.Errorf("%w: missing player id", ErrInvalidGame)
	case g.Rounds <= 0:
		return fmt.Errorf("%w: rounds must be positive", ErrInvalidGame)
	case !game.ValidOutcome(g.Result):
		return fmt.Errorf("%w: result %q", ErrInvalidGame, g.Result)
	case len(g.History) != g.Rounds:
		return fmt.Errorf("%w: %d rounds recorded for a %d round game", ErrInvalidGame, len(g.History), g.Rounds)
	}
	for i, r := range g.History {
		if r.Number != i+1 {
			return fmt.Errorf("%w: round %d numbered %d", ErrInvalidGame, i+1, r.Number)
		}
		if r.PlayerChoice == "" || r.ComputerChoice == "" || !game.ValidOutcome(r.Result) {
			return fmt.Errorf("%w: round %d incomplete", ErrInvalidGame, r.Number)
		}
	}
	return nil
}

// ListRecentGames は新しい順に最大 limit 件のゲームを返します。
func (s *Store) ListRecentGames(ctx context.Context, playerID uint, limit int) ([]models.Game, error) {
	var games []models.Game
	err := s.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&games).Error
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return games, nil
}

// RecentGamesWithRounds は統計画面用にラウンド詳細付きでゲームを取得します。
func (s *Store) RecentGamesWithRounds(ctx context.Context, playerID uint, limit int) ([]models.Game, error) {
	games, err := s.ListRecentGames(ctx, playerID, limit)
	if err != nil || len(games) == 0 {
		return games, err
	}

	ids := make([]uint, len(games))
	for i, g := range games {
		ids[i] = g.ID
	}
	var rounds []models.GameRound
	err = s.db.WithContext(ctx).
		Where("game_id IN ?", ids).
		Order("game_id").Order("round_number ASC").
		Find(&rounds).Error
	if err != nil {
		return nil, fmt.Errorf("list rounds for games: %w", err)
	}

	byGame := make(map[uint][]models.GameRound, len(games))
	for _, r := range rounds {
		byGame[r.GameID] = append(byGame[r.GameID], r)
	}
	for i := range games {
		games[i].RoundsData = byGame[games[i].ID]
	}
	return games, nil
}

// ListRounds はラウンド番号の昇順で返します。
func (s *Store) ListRounds(ctx context.Context, gameID uint) ([]models.GameRound, error) {
	var rounds []models.GameRound
	if err := s.db.WithContext(ctx).Where("game_id = ?", gameID).Order("round_number ASC").Find(&rounds).Error; err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	return rounds, nil
}

// ComputeStats はプレイヤーの全ゲームを集計します。
func (s *Store) ComputeStats(ctx context.Context, playerID uint) (models.Stats, error) {
	var rows []struct {
		Result string
		Total  int64
	}
	err := s.db.WithContext(ctx).Model(&models.Game{}).
		Select("result, COUNT(*) AS total").
		Where("player_id = ?", playerID).
		Group("result").
		Scan(&rows).Error
	if err != nil {
		return models.Stats{}, fmt.Errorf("compute stats: %w", err)
	}

	var stats models.Stats
	for _, row := range rows {
		stats.TotalGames += row.Total
		switch game.Outcome(row.Result) {
		case game.Win:
			stats.Wins = row.Total
		case game.Lose:
			stats.Losses = row.Total
		case game.Tie:
			stats.Ties = row.Total
		}
	}
	if stats.TotalGames > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.TotalGames) * 100
	}
	return stats, nil
}

// DeleteGame はゲームを削除します。ラウンドは外部キーの ON DELETE CASCADE で削除されます。
func (s *Store) DeleteGame(ctx context.Context, gameID uint) error {
	if err := s.db.WithContext(ctx).Delete(&models.Game{}, gameID).Error; err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return nil
}

// PurgeIdlePlayers は一度もゲームを完了していない古いプレイヤーを削除します。
func (s *Store) PurgeIdlePlayers(ctx context.Context, olderThan time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("created_at <= ? AND NOT EXISTS (SELECT 1 FROM games WHERE games.player_id = players.id)", olderThan).
		Delete(&models.Player{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge idle players: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ping はデータベースへの疎通を確認します。
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
