package game

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownPlayer はゲームの持ち主のプレイヤーが既に存在しない場合に Recorder が返します。
var ErrUnknownPlayer = errors.New("player no longer exists")

// CompletedGame は最終ラウンド終了時に永続化される1ゲーム分のデータ
type CompletedGame struct {
	PlayerID      uint
	Rounds        int
	PlayerScore   int
	ComputerScore int
	Result        Outcome
	History       []Round
}

// Recorder は完了したゲームをラウンドごとまとめて保存します。全て保存するか何も保存しないかのどちらかです。
type Recorder interface {
	RecordGame(ctx context.Context, g CompletedGame) (uint, error)
}

// Checkpoint はセッション状態を書き込みます。
type Checkpoint func(ctx context.Context, s *State) error

// RoundReport は1ラウンドの処理結果。クライアントへの応答に使います。
type RoundReport struct {
	PlayerChoice   Choice
	ComputerChoice Choice
	Result         Outcome
	ResultText     string
	PlayerScore    int
	ComputerScore  int
	CurrentRound   int
	TotalRounds    int
	GameOver       bool

	// 以下はゲーム終了時のみ
	GameResult  Outcome
	FinalResult string
	GameID      uint
	// PlayerRemoved はプレイヤーが削除済みで記録されずに終了したことを示す
	PlayerRemoved bool
}

// Tracker はセッション状態に対して1ラウンドを進めます。
type Tracker struct {
	recorder Recorder
	src      Source
}

// NewTracker は Tracker を生成します。src が nil の場合は math/rand を使います。
func NewTracker(recorder Recorder, src Source) *Tracker {
	if src == nil {
		src = globalSource{}
	}
	return &Tracker{recorder: recorder, src: src}
}

// Play は入力された手で1ラウンドを処理し、state を更新します。
// エラー時は state を一切変更しません。
func (t *Tracker) Play(ctx context.Context, state *State, input string) (*RoundReport, error) {
	return t.PlayAndSave(ctx, state, input, nil)
}

// PlayAndSave は Play と同じ処理を行い、更新後の状態を save で書き込みます。
// 最終ラウンドでは記録より先に終了状態を書き込み、記録に失敗した場合は元の状態に書き戻します。
// これにより記録済みのゲームが再送で二重に保存されることはありません。
func (t *Tracker) PlayAndSave(ctx context.Context, state *State, input string, save Checkpoint) (*RoundReport, error) {
	if save == nil {
		save = func(context.Context, *State) error { return nil }
	}

	player, err := ParseChoice(input)
	if err != nil {
		return nil, err
	}
	if state.Finished {
		return nil, ErrGameOver
	}
	if state.RoundsTarget <= 0 {
		return nil, ErrInvalidRounds
	}

	next := *state
	next.History = append(make([]Round, 0, len(state.History)+1), state.History...)

	computer := RandomChoice(t.src)
	result := DetermineWinner(player, computer)
	switch result {
	case Win:
		next.PlayerScore++
	case Lose:
		next.ComputerScore++
	}

	played := next.CurrentRound
	next.History = append(next.History, Round{
		Number:         played,
		PlayerChoice:   player,
		ComputerChoice: computer,
		Result:         result,
		ResultText:     RoundText(result),
	})

	report := &RoundReport{
		PlayerChoice:   player,
		ComputerChoice: computer,
		Result:         result,
		ResultText:     RoundText(result),
		PlayerScore:    next.PlayerScore,
		ComputerScore:  next.ComputerScore,
		CurrentRound:   played,
		TotalRounds:    next.RoundsTarget,
	}

	if played < next.RoundsTarget {
		next.CurrentRound++
		if err := save(ctx, &next); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		*state = next
		return report, nil
	}

	// 最終ラウンド
	next.Finished = true
	report.GameOver = true
	report.GameResult = GameResult(next.PlayerScore, next.ComputerScore)
	report.FinalResult = FinalText(report.GameResult)

	if err := save(ctx, &next); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	if next.PlayerID != 0 && t.recorder != nil {
		id, err := t.recorder.RecordGame(ctx, CompletedGame{
			PlayerID:      next.PlayerID,
			Rounds:        next.RoundsTarget,
			PlayerScore:   next.PlayerScore,
			ComputerScore: next.ComputerScore,
			Result:        report.GameResult,
			History:       next.History,
		})
		switch {
		case errors.Is(err, ErrUnknownPlayer):
			// 削除済みプレイヤーのゲームは記録せずに終了し、登録を外す
			next.Unregister()
			if err := save(ctx, &next); err != nil {
				return nil, fmt.Errorf("save session: %w", err)
			}
			report.PlayerRemoved = true
		case err != nil:
			if rollbackErr := save(ctx, state); rollbackErr != nil {
				return nil, fmt.Errorf("record game: %w", errors.Join(err, rollbackErr))
			}
			return nil, fmt.Errorf("record game: %w", err)
		default:
			report.GameID = id
		}
	}

	*state = next
	return report, nil
}
