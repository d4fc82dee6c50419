// internal/processor/processor.go
package processor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bluesky-social/indigo/atproto/syntax"

	"rickybot/internal/models"
)

// Ensure Processor implements ProcessorInterface
var _ ProcessorInterface = (*Processor)(nil)

type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

// ProcessFeed cleans feed entries into posts, dropping ones without a usable
// URI or author
func (p *Processor) ProcessFeed(items []*models.FeedViewPost) []models.Post {
	processed := make([]models.Post, 0, len(items))

	for _, item := range items {
		if item == nil || item.Post == nil || item.Post.Author == nil {
			continue
		}
		view := item.Post

		uri := strings.TrimSpace(view.URI)
		if _, err := syntax.ParseATURI(uri); err != nil {
			continue
		}
		author := p.processActor(view.Author)
		if author.DID == "" {
			continue
		}

		post := models.Post{
			URI:    uri,
			CID:    strings.TrimSpace(view.CID),
			Author: author,
		}
		if view.LikeCount != nil {
			post.LikeCount = *view.LikeCount
		}
		post.Media, post.ImageURL = detectMedia(view.Embed)

		processed = append(processed, post)
	}

	return processed
}

// ProcessActors cleans liker, follower and follow listings
func (p *Processor) ProcessActors(views []*models.ProfileView) []models.Actor {
	processed := make([]models.Actor, 0, len(views))

	for _, view := range views {
		if view == nil {
			continue
		}
		actor := p.processActor(view)
		if actor.DID == "" {
			continue
		}
		processed = append(processed, actor)
	}

	return processed
}

func (p *Processor) ProcessProfile(view *models.ProfileView) models.Profile {
	if view == nil {
		return models.Profile{}
	}
	profile := models.Profile{Actor: p.processActor(view)}
	if view.FollowersCount != nil {
		profile.FollowersCount = *view.FollowersCount
	}
	if view.FollowsCount != nil {
		profile.FollowsCount = *view.FollowsCount
	}
	return profile
}

func (p *Processor) processActor(view *models.ProfileView) models.Actor {
	did, err := syntax.ParseDID(strings.TrimSpace(view.Did))
	if err != nil {
		return models.Actor{}
	}

	actor := models.Actor{
		DID:    did.String(),
		Handle: strings.TrimSpace(view.Handle),
	}
	if v := view.Viewer; v != nil {
		if v.Following != nil {
			actor.FollowingURI = *v.Following
		}
		if v.FollowedBy != nil {
			actor.FollowedByURI = *v.FollowedBy
		}
		if v.Muted != nil {
			actor.Muted = *v.Muted
		}
	}
	return actor
}

// Only a top-level image embed counts as an image post; quoted media does not.
func detectMedia(raw json.RawMessage) (models.MediaKind, string) {
	if len(raw) == 0 {
		return models.MediaNone, ""
	}
	var embed models.EmbedView
	if err := json.Unmarshal(raw, &embed); err != nil {
		return models.MediaNone, ""
	}

	switch embed.Type {
	case models.EmbedImagesView:
		if len(embed.Images) == 0 || embed.Images[0].Fullsize == "" {
			return models.MediaNone, ""
		}
		return models.MediaImage, embed.Images[0].Fullsize
	case models.EmbedVideoView:
		return models.MediaVideo, ""
	default:
		return models.MediaNone, ""
	}
}

// PostURL builds the public web link for a post
func PostURL(post models.Post) string {
	rkey := recordKey(post.URI)
	handle := post.Author.Handle
	if handle == "" {
		handle = post.Author.DID
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, rkey)
}

// recordKey returns the last path segment of an at:// URI
func recordKey(uri string) string {
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
