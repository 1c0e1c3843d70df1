package db

import (
	"time"
)

// Status is the lifecycle state of a cave entry.
type Status string

const (
	StatusPreload Status = "preload"
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusDelete  Status = "delete"
)

// HashKind distinguishes text fingerprints from image fingerprints.
type HashKind string

const (
	HashText  HashKind = "text"
	HashImage HashKind = "image"
)

// ElementType tags one entry element.
type ElementType string

const (
	ElementText  ElementType = "text"
	ElementMedia ElementType = "media"
)

// Element is one ordered piece of a cave entry: either a text payload or a
// reference to a stored media file.
type Element struct {
	Type ElementType `json:"type"`
	Text string      `json:"text,omitempty"`
	File string      `json:"file,omitempty"`
}

// Elements preserves submission order.
type Elements []Element

// Cave maps the cave table: one archived (or in-flight) entry.
type Cave struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement:false"`
	Elements  Elements  `gorm:"column:elements;serializer:json;not null"`
	ChannelID string    `gorm:"column:channel_id;type:text;not null;index"`
	UserID    string    `gorm:"column:user_id;type:text;not null;index"`
	Status    Status    `gorm:"column:status;type:text;not null;default:preload;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Cave) TableName() string { return "cave" }

// Texts concatenates the entry's text elements joined by single spaces.
func (c *Cave) Texts() string {
	if c == nil {
		return ""
	}
	joined := ""
	for _, el := range c.Elements {
		if el.Type != ElementText {
			continue
		}
		if joined != "" {
			joined += " "
		}
		joined += el.Text
	}
	return joined
}

// MediaFiles lists the entry's media file names in element order.
func (c *Cave) MediaFiles() []string {
	if c == nil {
		return nil
	}
	var files []string
	for _, el := range c.Elements {
		if el.Type == ElementMedia && el.File != "" {
			files = append(files, el.File)
		}
	}
	return files
}

// CaveHash maps the cave_hash table. The full triple is the primary key: one
// entry may own several image hashes but at most one text hash.
type CaveHash struct {
	CaveID int64    `gorm:"column:cave_id;primaryKey;autoIncrement:false"`
	Hash   string   `gorm:"column:hash;type:text;primaryKey"`
	Kind   HashKind `gorm:"column:type;type:text;primaryKey;index"`
}

func (CaveHash) TableName() string { return "cave_hash" }

// CaveMeta maps the cave_meta table: AI analysis output for one entry.
type CaveMeta struct {
	CaveID   int64    `gorm:"column:cave_id;primaryKey;autoIncrement:false"`
	Rating   int      `gorm:"column:rating;not null"`
	Kind     string   `gorm:"column:type;type:text;not null;index"`
	Keywords []string `gorm:"column:keywords;serializer:json"`
}

func (CaveMeta) TableName() string { return "cave_meta" }

func autoMigrateModels() []any {
	return []any{
		&Cave{},
		&CaveHash{},
		&CaveMeta{},
	}
}
