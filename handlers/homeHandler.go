package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"rpsserver/database"
	"rpsserver/middlewares"
	"rpsserver/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Index はトップ画面。登録済みであればプレイヤー名を表示します。
func Index(c *gin.Context) {
	_, state := middlewares.CurrentSession(c)
	c.HTML(http.StatusOK, "index.html", gin.H{
		"player_name": state.PlayerName,
	})
}

// Register はプレイヤー名を登録（既存なら再利用）し、セッションに紐づけます。
func Register(c *gin.Context, players PlayerStore, sessions *session.Store, logger *zap.Logger) {
	sessionID, state := middlewares.CurrentSession(c)

	player, err := players.FindOrCreatePlayer(c.Request.Context(), c.PostForm("player_name"))
	if errors.Is(err, database.ErrNameTooLong) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Player name must be at most %d characters.", database.MaxNameLength)})
		return
	}
	if err != nil {
		logger.Error("Failed to register player", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register player"})
		return
	}

	state.Register(player.ID, player.Name)
	if err := sessions.Save(c.Request.Context(), sessionID, state); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save session"})
		return
	}

	logger.Info("Player registered", zap.Uint("playerID", player.ID), zap.String("name", player.Name))
	c.Redirect(http.StatusFound, "/")
}
