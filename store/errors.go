package store

import "errors"

var (
	// ErrCampaignNotFound indicates the campaign does not exist.
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrCampaignExists indicates a campaign with the same ID was already created.
	ErrCampaignExists = errors.New("campaign already exists")
)
