package handlers

import (
	"net/http"

	"rpsserver/middlewares"
	"rpsserver/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const recentGamesLimit = 10

// Stats は登録済みプレイヤーの通算成績と直近のゲームを表示します。
func Stats(c *gin.Context, players PlayerStore, sessions *session.Store, logger *zap.Logger) {
	sessionID, state := middlewares.CurrentSession(c)
	if state.PlayerID == 0 {
		c.Redirect(http.StatusFound, "/")
		return
	}
	ctx := c.Request.Context()

	player, err := players.GetPlayer(ctx, state.PlayerID)
	if err != nil {
		logger.Error("Failed to retrieve player", zap.Uint("playerID", state.PlayerID), zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to load stats.")
		return
	}
	if player == nil {
		// 削除済みのプレイヤー。セッションから外してトップへ戻す
		logger.Warn("Player in session no longer exists", zap.Uint("playerID", state.PlayerID))
		state.Unregister()
		if err := sessions.Save(ctx, sessionID, state); err != nil {
			logger.Error("Failed to clear stale player from session", zap.Error(err))
		}
		c.Redirect(http.StatusFound, "/")
		return
	}

	stats, err := players.ComputeStats(ctx, player.ID)
	if err != nil {
		logger.Error("Failed to compute stats", zap.Uint("playerID", player.ID), zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to load stats.")
		return
	}
	games, err := players.RecentGamesWithRounds(ctx, player.ID, recentGamesLimit)
	if err != nil {
		logger.Error("Failed to list games", zap.Uint("playerID", player.ID), zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to load stats.")
		return
	}

	c.HTML(http.StatusOK, "stats.html", gin.H{
		"player": player,
		"stats":  stats,
		"games":  games,
	})
}
