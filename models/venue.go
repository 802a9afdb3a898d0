package models

import (
	"context"
	"errors"
	"time"

	"github.com/evnsoft/clubshift_backend/config"
	"github.com/evnsoft/clubshift_backend/utils"
)

type Venue struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:255;not null;uniqueIndex" json:"name" binding:"required"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewVenue struct {
	Name string `json:"name" binding:"required"`
}

const venueListCacheKey = "Venues:all"

func CreateVenue(ctx context.Context, input *NewVenue) (*Venue, error) {
	venue := Venue{
		Name:   input.Name,
		Active: true,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&venue).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return nil, errors.New("venue name already exists")
		}
		return nil, persistence(err)
	}
	_ = config.RemoveRedisKey(venueListCacheKey)
	return &venue, nil
}

func GetVenue(ctx context.Context, id int) (*Venue, error) {
	return utils.FetchSingleModel[Venue](ctx, id)
}

// ListVenues returns active venues, redis-cached.
func ListVenues(ctx context.Context) ([]*Venue, error) {
	var venues []*Venue
	if found, err := config.GetRedisObject(venueListCacheKey, &venues); err == nil && found {
		return venues, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Where("active = ?", true).Order("name ASC").Find(&venues).Error; err != nil {
		return nil, persistence(err)
	}
	_ = config.SetRedisObject(venueListCacheKey, venues, time.Hour)
	return venues, nil
}

// DeactivateVenue soft-deletes; venues referenced by shifts or movements are
// never physically removed.
func DeactivateVenue(ctx context.Context, id int) (*Venue, error) {
	venue, err := utils.FetchSingleModel[Venue](ctx, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(venue).Update("active", false).Error; err != nil {
		return nil, persistence(err)
	}
	venue.Active = false
	_ = config.RemoveRedisKey(venueListCacheKey)
	return venue, nil
}
