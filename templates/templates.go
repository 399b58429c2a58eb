package templates

import (
	"embed"
	"fmt"
	"html/template"

	"rpsserver/game"
)

//go:embed *.html
var files embed.FS

// Load は画面テンプレートを読み込みます。テンプレート名はファイル名（"index.html" など）
func Load() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"formatChoice": func(c string) string { return game.FormatChoice(game.Choice(c)) },
		"percent":      func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	}).ParseFS(files, "*.html")
}
