package game

import "errors"

const DefaultRounds = 3

var (
	ErrInvalidRounds = errors.New("rounds must be a positive integer")
	ErrGameOver      = errors.New("game is already over")
)

// Round は1ラウンド分の履歴
type Round struct {
	Number         int     `json:"round"`
	PlayerChoice   Choice  `json:"player_choice"`
	ComputerChoice Choice  `json:"computer_choice"`
	Result         Outcome `json:"result"`
	ResultText     string  `json:"result_text"`
}

// State はセッションごとに保持される進行中のゲーム状態です。
// セッションストアにJSONとして保存され、リクエストごとに読み込み・更新・書き戻しされます。
type State struct {
	RoundsTarget  int     `json:"rounds"`
	CurrentRound  int     `json:"current_round"`
	PlayerScore   int     `json:"player_score"`
	ComputerScore int     `json:"computer_score"`
	History       []Round `json:"game_history"`
	// Finished は最終ラウンドが処理済みであることを示す。CurrentRound は RoundsTarget を超えない
	Finished bool `json:"finished"`

	// 登録済みプレイヤー。匿名プレイでは 0
	PlayerID   uint   `json:"player_id,omitempty"`
	PlayerName string `json:"player_name,omitempty"`
}

func NewState(roundsTarget int) (*State, error) {
	s := &State{}
	if err := s.Reset(roundsTarget); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset は進行中のゲームを破棄して1ラウンド目からやり直します。途中までの結果は保存されません。
// プレイヤー登録情報は引き継がれます。
func (s *State) Reset(roundsTarget int) error {
	if roundsTarget <= 0 {
		return ErrInvalidRounds
	}
	s.RoundsTarget = roundsTarget
	s.CurrentRound = 1
	s.PlayerScore = 0
	s.ComputerScore = 0
	s.History = []Round{}
	s.Finished = false
	return nil
}

// Register はセッションにプレイヤーを紐づけます。
func (s *State) Register(playerID uint, name string) {
	s.PlayerID = playerID
	s.PlayerName = name
}

// Unregister は存在しなくなったプレイヤーへの参照を外します。
func (s *State) Unregister() {
	s.PlayerID = 0
	s.PlayerName = ""
}

func (s *State) RoundsPlayed() int {
	return len(s.History)
}
