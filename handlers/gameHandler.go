package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"rpsserver/game"
	"rpsserver/middlewares"
	"rpsserver/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// parseRounds はラウンド数の入力を解釈します。未指定や数値でない場合は既定値の3
func parseRounds(raw string) int {
	rounds, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return game.DefaultRounds
	}
	return rounds
}

// GameView は新しいゲームを開始してゲーム画面を表示します。
func GameView(c *gin.Context, sessions *session.Store, logger *zap.Logger) {
	sessionID, state := middlewares.CurrentSession(c)

	rounds := parseRounds(c.Query("rounds"))
	if err := state.Reset(rounds); err != nil {
		c.String(http.StatusBadRequest, "Rounds must be a positive number.")
		return
	}
	if err := sessions.Save(c.Request.Context(), sessionID, state); err != nil {
		logger.Error("Failed to start game", zap.String("sessionID", sessionID), zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to start game.")
		return
	}

	choices := make([]string, len(game.Choices))
	for i, choice := range game.Choices {
		choices[i] = string(choice)
	}
	c.HTML(http.StatusOK, "game.html", gin.H{
		"rounds":      rounds,
		"player_name": state.PlayerName,
		"choices":     choices,
	})
}

// Play はプレイヤーの手を受け取り1ラウンドを処理します。
func Play(c *gin.Context, tracker *game.Tracker, sessions *session.Store, logger *zap.Logger) {
	sessionID, state := middlewares.CurrentSession(c)

	choice, ok := c.GetPostForm("choice")
	if !ok || strings.TrimSpace(choice) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No choice provided. Choose rock, paper, or scissors."})
		return
	}

	report, err := tracker.PlayAndSave(c.Request.Context(), state, choice, func(ctx context.Context, s *game.State) error {
		return sessions.Save(ctx, sessionID, s)
	})
	switch {
	case errors.Is(err, game.ErrInvalidChoice):
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid choice: %s. Choose rock, paper, or scissors.", choice)})
		return
	case errors.Is(err, game.ErrGameOver):
		c.JSON(http.StatusConflict, gin.H{"error": "This game is over. Start a new game to keep playing."})
		return
	case errors.Is(err, game.ErrInvalidRounds):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No game in progress. Start a new game."})
		return
	case err != nil:
		logger.Error("Failed to play round", zap.String("sessionID", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save the game. Please try again."})
		return
	}

	if report.PlayerRemoved {
		logger.Warn("削除済みプレイヤーのゲームは保存しません", zap.String("sessionID", sessionID))
	}

	var finalResult interface{}
	if report.GameOver {
		finalResult = report.FinalResult
		logger.Info("Game finished",
			zap.String("sessionID", sessionID),
			zap.String("result", string(report.GameResult)),
			zap.Uint("gameID", report.GameID),
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"player_choice":   report.PlayerChoice,
		"computer_choice": report.ComputerChoice,
		"result":          report.Result,
		"result_text":     report.ResultText,
		"player_score":    report.PlayerScore,
		"computer_score":  report.ComputerScore,
		"current_round":   report.CurrentRound,
		"total_rounds":    report.TotalRounds,
		"game_over":       report.GameOver,
		"final_result":    finalResult,
	})
}

// Reset は進行中のゲームを破棄して新しいゲームを始めます。
func Reset(c *gin.Context, sessions *session.Store, logger *zap.Logger) {
	sessionID, state := middlewares.CurrentSession(c)

	rounds := parseRounds(c.PostForm("rounds"))
	if err := state.Reset(rounds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Rounds must be a positive number."})
		return
	}
	if err := sessions.Save(c.Request.Context(), sessionID, state); err != nil {
		logger.Error("Failed to reset game", zap.String("sessionID", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "rounds": rounds})
}
