package types

import "time"

const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusResolved   = "resolved"
)

// Categories is the closed set of complaint categories a report can be filed
// under. The strings are part of the client contract, do not rename them.
var Categories = []string{
	"Curse Wand",
	"BedRock",
	"Staff Jail",
	"Banned Sembarangan",
	"Banned",
	"Scam",
	"Player Bermasalah",
	"Other",
}

// Report is one submitted complaint together with its conversation thread.
// The id is server-generated and opaque to clients.
type Report struct {
	Id        string     `json:"id" gorm:"primaryKey"`
	GrowId    string     `json:"growId"`
	Category  string     `json:"category"`
	Complaint string     `json:"complaint"`
	Status    string     `json:"status"`
	Responses []Response `json:"responses" gorm:"foreignKey:ReportId;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Response is a single message within a report's conversation. It has no
// identity of its own, it lives and dies with its parent report.
type Response struct {
	Seq         uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	ReportId    string    `json:"-" gorm:"index"`
	Message     string    `json:"message"`
	IsAdmin     bool      `json:"isAdmin"`
	Image       string    `json:"image,omitempty"`
	AdminName   string    `json:"adminName,omitempty"`
	AdminAvatar string    `json:"adminAvatar,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Read        bool      `json:"read"`
}

func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}
