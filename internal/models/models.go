// internal/models/models.go
package models

import (
	"net/http"
	"time"
)

// MediaKind describes what a post has attached
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaImage
	MediaVideo
)

func (m MediaKind) String() string {
	switch m {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	default:
		return "none"
	}
}

// Post is a feed entry normalized from the social API
type Post struct {
	URI       string    `json:"uri"`
	CID       string    `json:"cid"`
	Author    Actor     `json:"author"`
	Media     MediaKind `json:"media"`
	ImageURL  string    `json:"image_url,omitempty"`
	LikeCount int64     `json:"like_count"`
}

// Actor is a user as seen from the bot account
type Actor struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
	// FollowingURI is the record URI of our follow of this actor, empty if we don't follow them
	FollowingURI string `json:"following_uri,omitempty"`
	// FollowedByURI is the record URI of their follow of us, empty if they don't follow us
	FollowedByURI string `json:"followed_by_uri,omitempty"`
	Muted         bool   `json:"muted"`
}

func (a Actor) Following() bool  { return a.FollowingURI != "" }
func (a Actor) FollowedBy() bool { return a.FollowedByURI != "" }
func (a Actor) Mutual() bool     { return a.Following() && a.FollowedBy() }

// Profile is the subset of a profile lookup the jobs need
type Profile struct {
	Actor
	FollowersCount int64 `json:"followers_count"`
	FollowsCount   int64 `json:"follows_count"`
}

// FeedPage is one page of a cursor-paginated feed
type FeedPage struct {
	Posts  []Post
	Cursor string
}

// ActorPage is one page of likers, followers or follows
type ActorPage struct {
	Actors []Actor
	Cursor string
}

// DayRecord is one keyed-store record. Each attribute holds a set of opaque
// identifiers: a run's followed DIDs, or the seen-post cache.
type DayRecord struct {
	Key        string              `bson:"_id" json:"key"`
	Attributes map[string][]string `bson:"attributes" json:"attributes"`
	UpdatedAt  time.Time           `bson:"updated_at" json:"updated_at"`
}

// DeletionStats are cumulative prune counters for one day's list
type DeletionStats struct {
	Processed    int `bson:"PROCESSED" json:"processed"`
	NotFound     int `bson:"DNE" json:"not_found"`
	FollowedBack int `bson:"FOLLOWBACKS" json:"followed_back"`
	NoFollowBack int `bson:"NO-FOLLOWBACK" json:"no_follow_back"`
}

// Add returns the element-wise sum of two stats records
func (s DeletionStats) Add(o DeletionStats) DeletionStats {
	return DeletionStats{
		Processed:    s.Processed + o.Processed,
		NotFound:     s.NotFound + o.NotFound,
		FollowedBack: s.FollowedBack + o.FollowedBack,
		NoFollowBack: s.NoFollowBack + o.NoFollowBack,
	}
}

// ConversionRate is the percentage of checked follows that followed back
func (s DeletionStats) ConversionRate() float64 {
	total := s.FollowedBack + s.NoFollowBack
	if total == 0 {
		return 0
	}
	return float64(s.FollowedBack) / float64(total) * 100
}

// Snapshot maps a user DID to the URI of the follow record linking us
type Snapshot map[string]string

// Result is what every job invocation returns
type Result struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

func OK(body string) Result             { return Result{StatusCode: http.StatusOK, Body: body} }
func NoContent(body string) Result      { return Result{StatusCode: http.StatusNoContent, Body: body} }
func PartialSuccess(body string) Result { return Result{StatusCode: http.StatusMultiStatus, Body: body} }
func Failure(body string) Result        { return Result{StatusCode: http.StatusInternalServerError, Body: body} }

// Failed reports whether the run ended in a fatal error
func (r Result) Failed() bool { return r.StatusCode >= http.StatusInternalServerError }
