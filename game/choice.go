package game

import (
	"errors"
	"math/rand"
	"strings"
)

// Choice はプレイヤーまたはコンピュータの手を表します。値は列挙名そのもので、DBにもこの文字列で保存されます。
type Choice string

const (
	Rock     Choice = "ROCK"
	Paper    Choice = "PAPER"
	Scissors Choice = "SCISSORS"
)

// Choices は抽選順を固定するための全ての手
var Choices = []Choice{Rock, Paper, Scissors}

var ErrInvalidChoice = errors.New("invalid choice")

// Source はコンピュータの手を抽選する乱数源。*rand.Rand がそのまま満たします。
type Source interface {
	Intn(n int) int
}

type globalSource struct{}

// math/rand のトップレベル関数は複数ゴルーチンから安全に呼べる
func (globalSource) Intn(n int) int { return rand.Intn(n) }

// ParseChoice はフォーム入力を大文字小文字を区別せずに Choice へ変換します。
func ParseChoice(input string) (Choice, error) {
	switch c := Choice(strings.ToUpper(strings.TrimSpace(input))); c {
	case Rock, Paper, Scissors:
		return c, nil
	}
	return "", ErrInvalidChoice
}

// FormatChoice は画面表示用の名前（"Rock" など）を返します。
func FormatChoice(c Choice) string {
	switch c {
	case Rock:
		return "Rock"
	case Paper:
		return "Paper"
	case Scissors:
		return "Scissors"
	}
	return string(c)
}

// RandomChoice は3つの手から一様に1つ選びます。
func RandomChoice(src Source) Choice {
	if src == nil {
		src = globalSource{}
	}
	return Choices[src.Intn(len(Choices))]
}
