package game

// Outcome は常にプレイヤー視点での勝敗。ラウンド単位とゲーム単位の両方で使います。
type Outcome string

const (
	Win  Outcome = "WIN"
	Lose Outcome = "LOSE"
	Tie  Outcome = "TIE"
)

// beats[x] は x が勝つ相手の手
var beats = map[Choice]Choice{
	Rock:     Scissors,
	Scissors: Paper,
	Paper:    Rock,
}

// DetermineWinner は1ラウンドの勝敗を判定します。
func DetermineWinner(player, computer Choice) Outcome {
	if player == computer {
		return Tie
	}
	if beats[player] == computer {
		return Win
	}
	return Lose
}

// GameResult は最終スコアからゲーム全体の勝敗を決めます。
func GameResult(playerScore, computerScore int) Outcome {
	switch {
	case playerScore > computerScore:
		return Win
	case playerScore < computerScore:
		return Lose
	default:
		return Tie
	}
}

func ValidOutcome(o Outcome) bool {
	return o == Win || o == Lose || o == Tie
}

func RoundText(o Outcome) string {
	switch o {
	case Win:
		return "You win this round!"
	case Lose:
		return "Computer wins this round!"
	default:
		return "It's a tie!"
	}
}

func FinalText(o Outcome) string {
	switch o {
	case Win:
		return "🎉 Congratulations! You won the game!"
	case Lose:
		return "😞 Computer won the game. Better luck next time!"
	default:
		return "🤝 It's a draw!"
	}
}
