package db

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoleCreator = "Creator"
	RolePlayer  = "Player"
)

type Game struct {
	ID           uint      `gorm:"primaryKey"`
	Name         string    `gorm:"size:120;not null"`
	Description  string    `gorm:"size:2000"`
	CreatorID    string    `gorm:"size:128;index;not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
	Participants []GameParticipant
	Map          *Map
}

type GameParticipant struct {
	ID        uint      `gorm:"primaryKey"`
	GameID    uint      `gorm:"index;not null;uniqueIndex:idx_participants_game_user"`
	UserID    string    `gorm:"size:128;not null;uniqueIndex:idx_participants_game_user"`
	Role      string    `gorm:"size:16;not null"`
	Accepted  bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type Map struct {
	ID                 uint           `gorm:"primaryKey"`
	GameID             uint           `gorm:"uniqueIndex;not null"`
	Name               string         `gorm:"size:120;not null"`
	BackgroundImageURL *string        `gorm:"size:2048"`
	DrawnElements      datatypes.JSON `gorm:"not null"`
	CreatedAt          time.Time      `gorm:"not null"`
	UpdatedAt          time.Time      `gorm:"not null"`
}

type Token struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:120;not null"`
	ImageURL  string    `gorm:"size:2048;not null"`
	IsCustom  bool      `gorm:"not null;default:false;index"`
	GameID    *uint     `gorm:"index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
