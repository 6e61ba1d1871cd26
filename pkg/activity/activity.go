package activity

import (
	"fmt"
	"strings"
)

// Asset URL prefixes.
const (
	spotifyCDN    = "https://i.scdn.co/image/"
	twitchPreview = "https://static-cdn.jtvnw.net/previews-ttv/live_user_%s.jpg"
	appAssetURL   = "https://cdn.discordapp.com/app-assets/%d/%s.png"
)

// Gateway activity type codes.
const (
	TypePlaying   = 0
	TypeStreaming = 1
	TypeListening = 2
	TypeWatching  = 3
	TypeCustom    = 4
	TypeCompeting = 5 // reported as "unknown"
)

// Activity is one normalized entry of a user's presence.
type Activity struct {
	Name      string  `json:"name" cbor:"name"`
	Type      string  `json:"type" cbor:"type"`
	Details   *string `json:"details,omitempty" cbor:"details,omitempty"`
	HoverText *string `json:"hover_text,omitempty" cbor:"hover_text,omitempty"`
	AssetURL  *string `json:"asset_url,omitempty" cbor:"asset_url,omitempty"`
	StartTime *uint64 `json:"start_time" cbor:"start_time"`
	EndTime   *uint64 `json:"end_time" cbor:"end_time"`
}

// Presence is a decoded presence update for one user.
type Presence struct {
	UserID     uint64        `json:"user_id,string"`
	Activities []RawActivity `json:"activities"`
}

// RawActivity is an activity as the gateway reports it.
type RawActivity struct {
	Name          string      `json:"name"`
	Type          int         `json:"type"`
	Details       *string     `json:"details,omitempty"`
	ApplicationID uint64      `json:"application_id,omitempty,string"`
	Assets        *Assets     `json:"assets,omitempty"`
	Timestamps    *Timestamps `json:"timestamps,omitempty"`
}

// Assets references the images attached to an activity.
type Assets struct {
	LargeImage *string `json:"large_image,omitempty"`
	LargeText  *string `json:"large_text,omitempty"`
	SmallImage *string `json:"small_image,omitempty"`
	SmallText  *string `json:"small_text,omitempty"`
}

// Timestamps are unix milliseconds.
type Timestamps struct {
	Start *uint64 `json:"start,omitempty"`
	End   *uint64 `json:"end,omitempty"`
}

// FromPresence normalizes every activity in p. The result is never nil.
func FromPresence(p Presence) []Activity {
	out := make([]Activity, 0, len(p.Activities))
	for _, a := range p.Activities {
		out = append(out, FromRaw(a))
	}
	return out
}

// FromRaw normalizes a single gateway activity.
func FromRaw(a RawActivity) Activity {
	act := Activity{
		Name:    a.Name,
		Type:    TypeName(a.Type),
		Details: a.Details,
	}
	if a.Assets != nil {
		if img := first(a.Assets.LargeImage, a.Assets.SmallImage); img != nil {
			u := AssetURL(*img, a.ApplicationID)
			act.AssetURL = &u
		}
		act.HoverText = first(a.Assets.LargeText, a.Assets.SmallText)
	}
	if a.Timestamps != nil {
		act.StartTime = a.Timestamps.Start
		act.EndTime = a.Timestamps.End
	}
	return act
}

// TypeName maps a gateway type code to its display name.
func TypeName(code int) string {
	switch code {
	case TypePlaying:
		return "playing"
	case TypeStreaming:
		return "streaming"
	case TypeListening:
		return "listening"
	case TypeWatching:
		return "watching"
	case TypeCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// AssetURL resolves an asset reference to an image URL. Unprefixed
// references are application assets of appID.
func AssetURL(asset string, appID uint64) string {
	switch {
	case strings.HasPrefix(asset, "spotify:"):
		return spotifyCDN + asset[strings.LastIndexByte(asset, ':')+1:]
	case strings.HasPrefix(asset, "twitch:"):
		return fmt.Sprintf(twitchPreview, strings.TrimPrefix(asset, "twitch:"))
	case strings.HasPrefix(asset, "mp:external"):
		rest := asset
		if i := strings.LastIndex(asset, "https/"); i >= 0 {
			rest = asset[i+len("https/"):]
		}
		return "https://" + rest
	default:
		return fmt.Sprintf(appAssetURL, appID, asset)
	}
}

// Equal reports whether a and b hold the same activities in the same order.
func Equal(a, b []Activity) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Equal compares field values, not pointer identity.
func (a Activity) Equal(b Activity) bool {
	return a.Name == b.Name &&
		a.Type == b.Type &&
		eqPtr(a.Details, b.Details) &&
		eqPtr(a.HoverText, b.HoverText) &&
		eqPtr(a.AssetURL, b.AssetURL) &&
		eqPtr(a.StartTime, b.StartTime) &&
		eqPtr(a.EndTime, b.EndTime)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func first(ss ...*string) *string {
	for _, s := range ss {
		if s != nil {
			return s
		}
	}
	return nil
}
