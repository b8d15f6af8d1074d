// Package maps holds the collaborative map state of a game: the persisted
// map record, the tokens visible on it, the live broadcast channel and the
// coordinator that ties them together.
package maps

import (
	"encoding/json"
	"time"
)

const DefaultMapName = "Map Name"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DrawnElement is one freehand stroke.
type DrawnElement struct {
	Color  string  `json:"color" validate:"required,max=64,strokecolor"`
	Size   float64 `json:"size" validate:"gt=0,lte=500"`
	Points []Point `json:"points" validate:"required,min=1,max=10000"`
}

type Map struct {
	ID            uint
	GameID        uint
	Name          string
	ImageRef      *string
	DrawnElements []DrawnElement
	UpdatedAt     time.Time
}

type Token struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
	IsCustom bool   `json:"isCustom"`
	GameID   *uint  `json:"gameId"`
}

// VisibleIn reports whether the token may be placed on the given game's map.
func (t Token) VisibleIn(gameID uint) bool {
	if !t.IsCustom {
		return true
	}
	return t.GameID != nil && *t.GameID == gameID
}

type MapView struct {
	GameID        uint
	ImageRef      *string
	DrawnElements []DrawnElement
	Tokens        []Token
}

type Role string

const (
	RoleCreator Role = "Creator"
	RolePlayer  Role = "Player"
)

type Participation struct {
	Role     Role
	Accepted bool
}

func (p Participation) CanView() bool {
	return p.Role == RoleCreator || (p.Role == RolePlayer && p.Accepted)
}

func (p Participation) CanEdit() bool {
	return p.Role == RoleCreator
}

type Access int

const (
	AccessView Access = iota
	AccessEdit
)

func (a Access) String() string {
	if a == AccessEdit {
		return "edit"
	}
	return "view"
}

// Event is the envelope written to live viewers.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	EventMapUpdated = "mapUpdated"
	EventLiveEdit   = "liveEdit"
	EventJoined     = "joined"
	EventError      = "error"
)

func cloneElements(elems []DrawnElement) []DrawnElement {
	out := make([]DrawnElement, len(elems))
	for i, elem := range elems {
		points := make([]Point, len(elem.Points))
		copy(points, elem.Points)
		out[i] = DrawnElement{Color: elem.Color, Size: elem.Size, Points: points}
	}
	return out
}

// CloneMap returns a deep copy so callers never share stroke slices with a store.
func CloneMap(m *Map) *Map {
	if m == nil {
		return nil
	}
	out := *m
	if m.ImageRef != nil {
		ref := *m.ImageRef
		out.ImageRef = &ref
	}
	out.DrawnElements = cloneElements(m.DrawnElements)
	return &out
}
