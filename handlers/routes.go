package handlers

import (
	"context"

	"rpsserver/game"
	"rpsserver/middlewares"
	"rpsserver/models"
	"rpsserver/session"
	"rpsserver/templates"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PlayerStore は画面が必要とする永続化の操作。*database.Store が満たします。
type PlayerStore interface {
	FindOrCreatePlayer(ctx context.Context, name string) (*models.Player, error)
	GetPlayer(ctx context.Context, playerID uint) (*models.Player, error)
	ComputeStats(ctx context.Context, playerID uint) (models.Stats, error)
	RecentGamesWithRounds(ctx context.Context, playerID uint, limit int) ([]models.Game, error)
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Players  PlayerStore
	Sessions *session.Store
	Signer   *session.Signer
	Tracker  *game.Tracker
	Logger   *zap.Logger
}

// SetupRoutes はテンプレートを登録し、各HTTPリクエストのルーティングを設定します。
func SetupRoutes(router *gin.Engine, deps Dependencies) error {
	tmpl, err := templates.Load()
	if err != nil {
		return err
	}
	router.SetHTMLTemplate(tmpl)

	logger := deps.Logger
	router.GET("/healthz", func(c *gin.Context) {
		Health(c, deps.Players, deps.Sessions, logger)
	})

	// /healthz 以外はセッションが必要
	site := router.Group("/", middlewares.Session(deps.Sessions, deps.Signer, logger))
	site.GET("/", func(c *gin.Context) {
		Index(c)
	})
	site.POST("/register", func(c *gin.Context) {
		Register(c, deps.Players, deps.Sessions, logger)
	})
	site.GET("/game", func(c *gin.Context) {
		GameView(c, deps.Sessions, logger)
	})
	site.POST("/play", func(c *gin.Context) {
		Play(c, deps.Tracker, deps.Sessions, logger)
	})
	site.POST("/reset", func(c *gin.Context) {
		Reset(c, deps.Sessions, logger)
	})
	site.GET("/stats", func(c *gin.Context) {
		Stats(c, deps.Players, deps.Sessions, logger)
	})
	return nil
}
