package models

import "encoding/json"

// Wire shapes of the app.bsky read endpoints, decoded as-is and cleaned by
// the processor package.

const (
	EmbedImagesView = "app.bsky.embed.images#view"
	EmbedVideoView  = "app.bsky.embed.video#view"
)

type ViewerState struct {
	Following  *string `json:"following,omitempty"`
	FollowedBy *string `json:"followedBy,omitempty"`
	Muted      *bool   `json:"muted,omitempty"`
}

type ProfileView struct {
	Did            string       `json:"did"`
	Handle         string       `json:"handle"`
	DisplayName    *string      `json:"displayName,omitempty"`
	FollowersCount *int64       `json:"followersCount,omitempty"`
	FollowsCount   *int64       `json:"followsCount,omitempty"`
	Viewer         *ViewerState `json:"viewer,omitempty"`
}

type EmbedImage struct {
	Thumb    string `json:"thumb"`
	Fullsize string `json:"fullsize"`
	Alt      string `json:"alt"`
}

// EmbedView keeps only what media detection needs; other embed kinds decode
// to a bare Type.
type EmbedView struct {
	Type   string       `json:"$type"`
	Images []EmbedImage `json:"images,omitempty"`
}

type PostView struct {
	URI       string          `json:"uri"`
	CID       string          `json:"cid"`
	Author    *ProfileView    `json:"author"`
	Embed     json.RawMessage `json:"embed,omitempty"`
	LikeCount *int64          `json:"likeCount,omitempty"`
	IndexedAt string          `json:"indexedAt"`
}

type FeedViewPost struct {
	Post *PostView `json:"post"`
}

type FeedOutput struct {
	Cursor *string         `json:"cursor,omitempty"`
	Feed   []*FeedViewPost `json:"feed"`
}

type LikesOutput struct {
	Cursor *string `json:"cursor,omitempty"`
	Likes  []*struct {
		Actor *ProfileView `json:"actor"`
	} `json:"likes"`
}

type FollowersOutput struct {
	Cursor    *string        `json:"cursor,omitempty"`
	Followers []*ProfileView `json:"followers"`
}

type FollowsOutput struct {
	Cursor  *string        `json:"cursor,omitempty"`
	Follows []*ProfileView `json:"follows"`
}
