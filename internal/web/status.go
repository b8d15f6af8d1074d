package web

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Status renders the operator page listing games and their live viewers.
func Status(data StatusData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		storage := "database"
		if data.InMemory {
			storage = "in-memory"
		}
		_, _ = io.WriteString(w, `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Tabletop Maps</title>
  </head>
  <body>
    <main class="shell">
      <header class="hero">
        <span class="tag">Tabletop Maps</span>
        <h1>Live map sessions</h1>
        <p>`+itoa(data.LiveViewers)+` viewers connected &middot; `+storage+` storage &middot; `+templ.EscapeString(formatTime(data.RenderedAt))+` UTC</p>
      </header>
`)
		if len(data.Games) == 0 {
			_, _ = io.WriteString(w, `      <p class="empty">No games yet.</p>
`)
		} else {
			_, _ = io.WriteString(w, `      <table>
        <thead><tr><th>Game</th><th>Name</th><th>Map</th><th>Viewers</th></tr></thead>
        <tbody>
`)
			for _, game := range data.Games {
				hasMap := "no"
				if game.HasMap {
					hasMap = "yes"
				}
				_, _ = io.WriteString(w, `          <tr><td><a href="/map/`+utoa(game.GameID)+`">`+utoa(game.GameID)+`</a></td><td>`+
					templ.EscapeString(game.Name)+`</td><td>`+hasMap+`</td><td>`+itoa(game.Viewers)+`</td></tr>
`)
			}
			_, _ = io.WriteString(w, `        </tbody>
      </table>
`)
		}
		_, err := io.WriteString(w, `    </main>
  </body>
</html>
`)
		return err
	})
}
