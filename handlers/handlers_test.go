package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rpsserver/database"
	"rpsserver/game"
	"rpsserver/middlewares"
	"rpsserver/models"
	"rpsserver/session"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fixedSource は常に同じ手（インデックス）を返す
type fixedSource int

func (f fixedSource) Intn(n int) int { return int(f) % n }

type testServer struct {
	router *gin.Engine
	store  *database.Store
	db     *gorm.DB
	mr     *miniredis.Miniredis
}

func newTestServer(t *testing.T, computer game.Choice) *testServer {
	t.Helper()
	return newTestServerWithTokenTTL(t, computer, time.Hour)
}

// newTestServerWithTokenTTL はクッキーのトークンの有効期限だけを変えたサーバー
func newTestServerWithTokenTTL(t *testing.T, computer game.Choice, tokenTTL time.Duration) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "rps.db")+"?_pragma=foreign_keys(1)"),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	src := fixedSource(0)
	for i, c := range game.Choices {
		if c == computer {
			src = fixedSource(i)
		}
	}

	log := zap.NewNop()
	store := database.NewStore(db, log)
	router := gin.New()
	err = SetupRoutes(router, Dependencies{
		Players:  store,
		Sessions: session.NewStore(rdb, time.Hour, log),
		Signer:   session.NewSigner("test-secret", tokenTTL),
		Tracker:  game.NewTracker(store, src),
		Logger:   log,
	})
	if err != nil {
		t.Fatalf("SetupRoutes: %v", err)
	}
	return &testServer{router: router, store: store, db: db, mr: mr}
}

// browser はクッキーを保持して連続したリクエストを送る
type browser struct {
	t       *testing.T
	srv     *testServer
	cookies []*http.Cookie
}

func (s *testServer) browser(t *testing.T) *browser {
	return &browser{t: t, srv: s}
}

func (b *browser) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	b.srv.router.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name == middlewares.CookieName {
			b.cookies = []*http.Cookie{c}
		}
	}
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body
}

func TestIndexIssuesSessionCookie(t *testing.T) {
	srv := newTestServer(t, game.Rock)
	b := srv.browser(t)

	w := b.do(http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(b.cookies) != 1 {
		t.Fatalf("no session cookie issued")
	}
	if keys := srv.mr.Keys(); len(keys) != 1 || !strings.HasPrefix(keys[0], "session:") {
		t.Fatalf("redis keys = %v", keys)
	}

	// 同じクッキーでは新しいセッションを作らず、クッキーだけ更新する
	w = b.do(http.MethodGet, "/", nil)
	if keys := srv.mr.Keys(); len(keys) != 1 {
		t.Fatalf("session recreated: %v", keys)
	}
	renewed := false
	for _, c := range w.Result().Cookies() {
		if c.Name == middlewares.CookieName && c.MaxAge == int(time.Hour.Seconds()) {
			renewed = true
		}
	}
	if !renewed {
		t.Fatalf("session cookie not renewed on restored session")
	}
}

func TestSessionCookieSlidesWithActivity(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for token expiry")
	}
	srv := newTestServerWithTokenTTL(t, game.Scissors, 3*time.Second)
	b := srv.browser(t)
	b.do(http.MethodGet, "/game?rounds=5", nil)

	// 最初に発行したトークンの期限を過ぎても、操作を続けていればゲームは続く
	for round := 1; round <= 3; round++ {
		time.Sleep(1100 * time.Millisecond)
		body := decode(t, b.do(http.MethodPost, "/play", url.Values{"choice": {"rock"}}))
		if body["current_round"] != float64(round) || body["player_score"] != float64(round) {
			t.Fatalf("play %d: session lost: %v", round, body)
		}
	}
}

func TestUnreadableSessionIsNotReplaced(t *testing.T) {
	srv := newTestServer(t, game.Rock)
	b := srv.browser(t)
	b.do(http.MethodGet, "/", nil)
	keys := srv.mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("redis keys = %v", keys)
	}
	if err := srv.mr.Set(keys[0], "{not json"); err != nil {
		t.Fatalf("set: %v", err)
	}
	cookie := b.cookies[0].Value

	w := b.do(http.MethodGet, "/", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if b.cookies[0].Value != cookie {
		t.Fatalf("session cookie replaced after load failure")
	}
	if keys := srv.mr.Keys(); len(keys) != 1 {
		t.Fatalf("new session created: %v", keys)
	}
}

func TestTamperedCookieGetsFreshSession(t *testing.T) {
	srv := newTestServer(t, game.Rock)
	b := srv.browser(t)
	b.cookies = []*http.Cookie{{Name: middlewares.CookieName, Value: "forged"}}

	w := b.do(http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if b.cookies[0].Value == "forged" {
		t.Fatalf("forged cookie was not replaced")
	}
}

func TestRegisterStoresPlayerInSession(t *testing.T) {
	srv := newTestServer(t, game.Rock)
	b := srv.browser(t)

	w := b.do(http.MethodPost, "/register", url.Values{"player_name": {"Alice"}})
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("register: status=%d location=%q", w.Code, w.Header().Get("Location"))
	}

	w = b.do(http.MethodGet, "/", nil)
	if !strings.Contains(w.Body.String(), "Alice") {
		t.Fatalf("landing page does not show registered name")
	}

	// 同じ名前の再登録は同じプレイヤー
	other := srv.browser(t)
	other.do(http.MethodPost, "/register", url.Values{"player_name": {"Alice"}})
	var count int64
	srv.db.Model(&models.Player{}).Where("name = ?", "Alice").Count(&count)
	if count != 1 {
		t.Fatalf("players named Alice = %d, want 1", count)
	}
}

func TestRegisterBlankNameIsAnonymous(t *testing.T) {
	srv := newTestServer(t, game.Rock)
	b := srv.browser(t)
	b.do(http.MethodPost, "/register", url.Values{"player_name": {"  "}})

	var p models.Player
	if err := srv.db.First(&p).Error; err != nil {
		t.Fatalf("player not created: %v", err)
	}
	if p.Name != models.AnonymousName {
		t.Fatalf("name = %q", p.Name)
	}
}

func TestRegisterRejectsLongName(t *testing.T) {
	srv := newTestServer(t, game.Rock)
	b := srv.browser(t)

	w := b.do(http.MethodPost, "/register", url.Values{"player_name": {strings.Repeat("a", database.MaxNameLength+1)}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var players int64
	srv.db.Model(&models.Player{}).Count(&players)
	if players != 0 {
		t.Fatalf("players = %d, want 0", players)
	}
}

func TestFullGameIsPersistedForRegisteredPlayer(t *testing.T) {
	// コンピュータは常にグー
	srv := newTestServer(t, game.Rock)
	b := srv.browser(t)
	b.do(http.MethodPost, "/register", url.Values{"player_name": {"Alice"}})

	w := b.do(http.MethodGet, "/game?rounds=3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("game view status = %d", w.Code)
	}

	plays := []struct {
		choice string
		result string
	}{
		{"paper", "WIN"},
		{"Scissors", "LOSE"},
		{"PAPER", "WIN"},
	}
	for i, p := range plays {
		w := b.do(http.MethodPost, "/play", url.Values{"choice": {p.choice}})
		if w.Code != http.StatusOK {
			t.Fatalf("play %d: status=%d body=%s", i+1, w.Code, w.Body.String())
		}
		body := decode(t, w)
		if body["result"] != p.result || body["computer_choice"] != "ROCK" {
			t.Errorf("play %d: body=%v", i+1, body)
		}
		if body["current_round"] != float64(i+1) || body["total_rounds"] != float64(3) {
			t.Errorf("play %d: rounds in body=%v", i+1, body)
		}
		gameOver := body["game_over"] == true
		if gameOver != (i == 2) {
			t.Errorf("play %d: game_over=%v", i+1, body["game_over"])
		}
		if !gameOver && body["final_result"] != nil {
			t.Errorf("play %d: final_result=%v before game over", i+1, body["final_result"])
		}
		if gameOver && body["final_result"] != game.FinalText(game.Win) {
			t.Errorf("final_result = %v", body["final_result"])
		}
	}

	var g models.Game
	if err := srv.db.Preload("RoundsData").First(&g).Error; err != nil {
		t.Fatalf("game not persisted: %v", err)
	}
	if g.Result != "WIN" || g.PlayerScore != 2 || g.ComputerScore != 1 || g.Rounds != 3 || len(g.RoundsData) != 3 {
		t.Fatalf("persisted game = %+v", g)
	}

	// 終了後のプレイは拒否され、追加の保存も起きない
	w = b.do(http.MethodPost, "/play", url.Values{"choice": {"rock"}})
	if w.Code != http.StatusConflict {
		t.Fatalf("play after game over: status=%d", w.Code)
	}
	var games int64
	srv.db.Model(&models.Game{}).Count(&games)
	if games != 1 {
		t.Fatalf("games = %d, want 1", games)
	}

	w = b.do(http.MethodGet, "/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	page := w.Body.String()
	for _, want := range []string{"Stats for Alice", "Games played: 1", "Wins: 1", "Win rate: 100.0%", "Scissors"} {
		if !strings.Contains(page, want) {
			t.Errorf("stats page missing %q", want)
		}
	}
}

func TestAnonymousGameIsNotPersisted(t *testing.T) {
	srv := newTestServer(t, game.Scissors)
	b := srv.browser(t)
	b.do(http.MethodGet, "/game?rounds=1", nil)

	w := b.do(http.MethodPost, "/play", url.Values{"choice": {"rock"}})
	body := decode(t, w)
	if body["game_over"] != true || body["result"] != "WIN" {
		t.Fatalf("body = %v", body)
	}
	var games int64
	srv.db.Model(&models.Game{}).Count(&games)
	if games != 0 {
		t.Fatalf("anonymous game persisted")
	}
}

func TestPlayRejectsInvalidChoice(t *testing.T) {
	srv := newTestServer(t, game.Rock)
	b := srv.browser(t)
	b.do(http.MethodGet, "/game?rounds=3", nil)

	for _, form := range []url.Values{{"choice": {"lizard"}}, {}} {
		w := b.do(http.MethodPost, "/play", form)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d for %v", w.Code, form)
		}
		if _, ok := decode(t, w)["error"]; !ok {
			t.Fatalf("no error message for %v", form)
		}
	}

	// 無効な入力でラウンドは進まない
	body := decode(t, b.do(http.MethodPost, "/play", url.Values{"choice": {"rock"}}))
	if body["current_round"] != float64(1) || body["player_score"] != float64(0) {
		t.Fatalf("round advanced after invalid input: %v", body)
	}
}

func TestResetStartsOver(t *testing.T) {
	srv := newTestServer(t, game.Scissors)
	b := srv.browser(t)
	b.do(http.MethodGet, "/game?rounds=3", nil)
	b.do(http.MethodPost, "/play", url.Values{"choice": {"rock"}})

	w := b.do(http.MethodPost, "/reset", url.Values{"rounds": {"5"}})
	body := decode(t, w)
	if w.Code != http.StatusOK || body["success"] != true || body["rounds"] != float64(5) {
		t.Fatalf("reset: status=%d body=%v", w.Code, body)
	}

	body = decode(t, b.do(http.MethodPost, "/play", url.Values{"choice": {"rock"}}))
	if body["current_round"] != float64(1) || body["total_rounds"] != float64(5) || body["player_score"] != float64(1) {
		t.Fatalf("after reset: %v", body)
	}

	// 省略時は3
	body = decode(t, b.do(http.MethodPost, "/reset", url.Values{}))
	if body["rounds"] != float64(3) {
		t.Fatalf("default rounds = %v", body["rounds"])
	}
}

func TestNonPositiveRoundsRejected(t *testing.T) {
	srv := newTestServer(t, game.Rock)
	b := srv.browser(t)

	if w := b.do(http.MethodGet, "/game?rounds=0", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("/game?rounds=0 status = %d", w.Code)
	}
	if w := b.do(http.MethodPost, "/reset", url.Values{"rounds": {"-2"}}); w.Code != http.StatusBadRequest {
		t.Fatalf("/reset rounds=-2 status = %d", w.Code)
	}
}

func TestStatsRequiresRegistration(t *testing.T) {
	srv := newTestServer(t, game.Rock)
	b := srv.browser(t)
	w := b.do(http.MethodGet, "/stats", nil)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("status=%d location=%q", w.Code, w.Header().Get("Location"))
	}
}

func TestStatsClearsStalePlayer(t *testing.T) {
	srv := newTestServer(t, game.Rock)
	b := srv.browser(t)
	b.do(http.MethodPost, "/register", url.Values{"player_name": {"Ghost"}})

	if err := srv.db.Where("name = ?", "Ghost").Delete(&models.Player{}).Error; err != nil {
		t.Fatalf("delete player: %v", err)
	}

	w := b.do(http.MethodGet, "/stats", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d", w.Code)
	}
	w = b.do(http.MethodGet, "/", nil)
	if strings.Contains(w.Body.String(), "Ghost") {
		t.Fatalf("stale player name still in session")
	}
}

func TestPlayFlushFailureIsReported(t *testing.T) {
	srv := newTestServer(t, game.Scissors)
	b := srv.browser(t)
	b.do(http.MethodPost, "/register", url.Values{"player_name": {"Alice"}})
	b.do(http.MethodGet, "/game?rounds=1", nil)

	if err := srv.db.Migrator().DropTable(&models.GameRound{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	w := b.do(http.MethodPost, "/play", url.Values{"choice": {"rock"}})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var games int64
	srv.db.Model(&models.Game{}).Count(&games)
	if games != 0 {
		t.Fatalf("partial game persisted")
	}

	// セッションは最終ラウンド前に戻っているので、復旧後にやり直せる
	if err := database.AutoMigrate(srv.db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	w = b.do(http.MethodPost, "/play", url.Values{"choice": {"rock"}})
	if w.Code != http.StatusOK || decode(t, w)["game_over"] != true {
		t.Fatalf("retry: status=%d body=%s", w.Code, w.Body.String())
	}
	srv.db.Model(&models.Game{}).Count(&games)
	if games != 1 {
		t.Fatalf("games = %d, want 1", games)
	}
}

func TestFinalRoundIsSavedOnceWhenRedisFailsAfterCommit(t *testing.T) {
	srv := newTestServer(t, game.Scissors)
	b := srv.browser(t)
	b.do(http.MethodPost, "/register", url.Values{"player_name": {"Alice"}})
	b.do(http.MethodGet, "/game?rounds=1", nil)

	// ラウンドの保存直後から Redis を使えなくする
	err := srv.db.Callback().Create().After("gorm:create").Register("test:redis_down", func(tx *gorm.DB) {
		if tx.Statement.Table == "game_rounds" && tx.Error == nil {
			srv.mr.SetError("READONLY You can't write against a read only replica.")
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	w := b.do(http.MethodPost, "/play", url.Values{"choice": {"rock"}})
	if w.Code != http.StatusOK || decode(t, w)["game_over"] != true {
		t.Fatalf("final play: status=%d body=%s", w.Code, w.Body.String())
	}

	srv.mr.SetError("")
	w = b.do(http.MethodPost, "/play", url.Values{"choice": {"rock"}})
	if w.Code != http.StatusConflict {
		t.Fatalf("resubmitted final play: status=%d body=%s", w.Code, w.Body.String())
	}
	var games int64
	srv.db.Model(&models.Game{}).Count(&games)
	if games != 1 {
		t.Fatalf("games = %d, want 1", games)
	}
}

func TestPlayAfterPlayerPurgedFinishesGame(t *testing.T) {
	srv := newTestServer(t, game.Scissors)
	b := srv.browser(t)
	b.do(http.MethodPost, "/register", url.Values{"player_name": {"Old"}})
	b.do(http.MethodGet, "/game?rounds=1", nil)

	ctx := context.Background()
	srv.db.Model(&models.Player{}).Where("name = ?", "Old").Update("created_at", time.Now().Add(-800*time.Hour))
	purged, err := srv.store.PurgeIdlePlayers(ctx, time.Now().Add(-720*time.Hour))
	if err != nil || purged != 1 {
		t.Fatalf("PurgeIdlePlayers = %d, %v", purged, err)
	}

	w := b.do(http.MethodPost, "/play", url.Values{"choice": {"rock"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["game_over"] != true || body["result"] != "WIN" {
		t.Fatalf("body = %v", body)
	}
	var games int64
	srv.db.Model(&models.Game{}).Count(&games)
	if games != 0 {
		t.Fatalf("games = %d, want 0", games)
	}

	// 登録は外れている
	if w := b.do(http.MethodGet, "/", nil); strings.Contains(w.Body.String(), "Old") {
		t.Fatalf("purged player still in session")
	}
	if w := b.do(http.MethodGet, "/stats", nil); w.Code != http.StatusFound {
		t.Fatalf("stats status = %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, game.Rock)
	b := srv.browser(t)

	w := b.do(http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK || decode(t, w)["status"] != "ok" {
		t.Fatalf("healthy: status=%d body=%s", w.Code, w.Body.String())
	}

	srv.mr.SetError("connection refused")
	w = b.do(http.MethodGet, "/healthz", nil)
	body := decode(t, w)
	if w.Code != http.StatusServiceUnavailable || body["redis"] != "unavailable" || body["postgres"] != "ok" {
		t.Fatalf("degraded: status=%d body=%v", w.Code, body)
	}
}

var _ PlayerStore = (*database.Store)(nil)
