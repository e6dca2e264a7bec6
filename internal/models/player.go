package models

import "time"

// Player is a catalog entry. Rows seeded from the catalog file are write-once;
// only admin-authored custom rows (IsCustom) may be edited afterwards.
type Player struct {
	ID          int       `json:"id" db:"id"`
	ExternalID  string    `json:"playerId" db:"external_id"`
	Name        string    `json:"name" db:"name"`
	Positions   string    `json:"positions" db:"positions"` // comma-separated position codes
	ClubName    string    `json:"clubName" db:"club_name"`
	Age         int       `json:"age" db:"age"`
	Nationality string    `json:"nationality" db:"nationality"`
	Rating      int       `json:"rating" db:"rating"`
	Potential   int       `json:"potential" db:"potential"`
	Value       int64     `json:"value" db:"value"` // market value in cents
	Wage        int64     `json:"wage" db:"wage"`   // in cents
	IsCustom    bool      `json:"isCustom" db:"is_custom"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}
