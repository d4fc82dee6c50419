// internal/processor/interface.go
package processor

import (
	"rickybot/internal/models"
)

type ProcessorInterface interface {
	ProcessFeed(items []*models.FeedViewPost) []models.Post
	ProcessActors(views []*models.ProfileView) []models.Actor
	ProcessProfile(view *models.ProfileView) models.Profile
}
