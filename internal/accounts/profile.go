package accounts

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
)

// StoredProfile remembers the hotel profile a reception account last submitted,
// so it survives logout.
type StoredProfile struct {
	Username         string    `gorm:"column:username;primaryKey;size:190;not null"`
	Name             string    `gorm:"column:hotel_name;size:320;not null"`
	Address          string    `gorm:"column:hotel_address;size:512;not null"`
	ReceptionistName string    `gorm:"column:receptionist_name;size:320;not null"`
	Phone            string    `gorm:"column:phone;size:64;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing remembered profiles.
func (StoredProfile) TableName() string {
	return "hotel_profiles"
}

// HotelProfile converts the stored row into the state representation.
func (p StoredProfile) HotelProfile() state.HotelProfile {
	return state.HotelProfile{
		Name:             p.Name,
		Address:          p.Address,
		ReceptionistName: p.ReceptionistName,
		Phone:            p.Phone,
	}
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
