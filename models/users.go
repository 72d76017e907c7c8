package models

import "time"

// Eatery is a vendor account. One eatery serves one or more upstream
// restaurant ids.
type Eatery struct {
	ID          string             `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name        string             `gorm:"type:varchar(255);not null" json:"name"`
	Email       string             `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password    string             `gorm:"type:varchar(255);not null" json:"-"`
	Restaurants []EateryRestaurant `gorm:"foreignKey:EateryID" json:"restaurants"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// EateryRestaurant links an upstream restaurant id to the eatery that
// fulfils its orders.
type EateryRestaurant struct {
	ID           uint   `gorm:"primaryKey" json:"-"`
	EateryID     string `gorm:"type:varchar(64);not null;index" json:"eateryId"`
	RestaurantID string `gorm:"type:varchar(64);uniqueIndex;not null" json:"restaurantId"`
}

// RestaurantIDs flattens the linked restaurant ids.
func (e Eatery) RestaurantIDs() []string {
	ids := make([]string, 0, len(e.Restaurants))
	for _, r := range e.Restaurants {
		ids = append(ids, r.RestaurantID)
	}
	return ids
}
