package middlewares

import (
	"errors"
	"net/http"

	"rpsserver/game"
	"rpsserver/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	CookieName = "rps_session"

	sessionIDKey    = "sessionID"
	sessionStateKey = "sessionState"
)

// Session はクッキーからセッションを復元するミドルウェアです。
// クッキーが無い・改ざんされている・期限切れの場合は新しいセッションを発行します。
// 復元できた場合もトークンを署名し直し、クッキーの期限を Redis の期限に合わせて延長します。
func Session(store *session.Store, signer *session.Signer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var sessionID string
		var state *game.State
		if raw, err := c.Cookie(CookieName); err == nil {
			if id, err := signer.Parse(raw); err == nil {
				loaded, err := store.Load(ctx, id)
				switch {
				case err == nil:
					sessionID, state = id, loaded
					if err := store.Touch(ctx, id); err != nil {
						logger.Warn("Failed to extend session", zap.String("sessionID", id), zap.Error(err))
					}
				case errors.Is(err, session.ErrNotFound):
					logger.Debug("Session expired", zap.String("sessionID", id))
				default:
					// 一時的な障害で進行中のゲームを捨てない
					logger.Error("Failed to load session", zap.String("sessionID", id), zap.Error(err))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
					return
				}
			} else {
				logger.Warn("セッションクッキーの検証に失敗", zap.Error(err))
			}
		}

		if state == nil {
			id, fresh, err := store.Create(ctx)
			if err != nil {
				logger.Error("Failed to create session", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
				return
			}
			sessionID, state = id, fresh
		}

		signed, err := signer.Sign(sessionID)
		if err != nil {
			logger.Error("Failed to sign session", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(CookieName, signed, int(store.TTL().Seconds()), "/", "", false, true)

		c.Set(sessionIDKey, sessionID)
		c.Set(sessionStateKey, state)
		c.Next()
	}
}

// CurrentSession はミドルウェアが復元したセッションIDと状態を返します。
func CurrentSession(c *gin.Context) (string, *game.State) {
	id := c.GetString(sessionIDKey)
	state, _ := c.MustGet(sessionStateKey).(*game.State)
	return id, state
}
