package web

import "time"

// GameStatus is one row of the status page.
type GameStatus struct {
	GameID  uint
	Name    string
	Viewers int
	HasMap  bool
}

type StatusData struct {
	Games       []GameStatus
	LiveViewers int
	InMemory    bool
	RenderedAt  time.Time
}
