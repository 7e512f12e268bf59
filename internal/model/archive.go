// Package model defines the data structures shared by the repository,
// service and handler layers.
package model

import "time"

// Archive is one styled journal entry owned by a single user.
//
// UserID is set once on creation and never changes afterwards; every query
// that touches an archive is scoped by it.
type Archive struct {
	ID              string    `json:"id"`
	UserID          string    `json:"-"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Content         string    `json:"content"`
	ImageSize       string    `json:"imageSize"`
	BackgroundColor string    `json:"backgroundColor"`
	FontStyle       string    `json:"fontStyle"`
	FontColor       string    `json:"fontColor"`
	Thumbnail       string    `json:"thumbnail"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ArchiveFields is the complete set of fields a caller may write.
// Create and Replace always take all of them; there is no partial update.
type ArchiveFields struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	Content         string `json:"content"`
	ImageSize       string `json:"imageSize"`
	BackgroundColor string `json:"backgroundColor"`
	FontStyle       string `json:"fontStyle"`
	FontColor       string `json:"fontColor"`
	Thumbnail       string `json:"thumbnail"`
}

// Apply overwrites every mutable field of a with f.
func (f ArchiveFields) Apply(a *Archive) {
	a.Title = f.Title
	a.Author = f.Author
	a.Content = f.Content
	a.ImageSize = f.ImageSize
	a.BackgroundColor = f.BackgroundColor
	a.FontStyle = f.FontStyle
	a.FontColor = f.FontColor
	a.Thumbnail = f.Thumbnail
}

// Fields returns the mutable part of a.
func (a *Archive) Fields() ArchiveFields {
	return ArchiveFields{
		Title:           a.Title,
		Author:          a.Author,
		Content:         a.Content,
		ImageSize:       a.ImageSize,
		BackgroundColor: a.BackgroundColor,
		FontStyle:       a.FontStyle,
		FontColor:       a.FontColor,
		Thumbnail:       a.Thumbnail,
	}
}

// RitualSummary is the derived "my ritual" report for one user.
type RitualSummary struct {
	TotalArchiveCount int64 `json:"totalArchiveCount"`
	TotalBookCount    int64 `json:"totalBookCount"`
	ContinuityPostDay int   `json:"continuityPostDay"`
}
