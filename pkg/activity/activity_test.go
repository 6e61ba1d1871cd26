package activity

import (
	"encoding/json"
	"testing"
)

func str(s string) *string { return &s }
func u64(n uint64) *uint64 { return &n }

func TestAssetURL(t *testing.T) {
	cases := []struct {
		asset string
		appID uint64
		want  string
	}{
		{"spotify:ab67616d0000b273", 0, "https://i.scdn.co/image/ab67616d0000b273"},
		{"twitch:somestreamer", 0, "https://static-cdn.jtvnw.net/previews-ttv/live_user_somestreamer.jpg"},
		{"mp:external/Xyz/https/media.example.com/img.png", 0, "https://media.example.com/img.png"},
		{"383226320970055681", 1234, "https://cdn.discordapp.com/app-assets/1234/383226320970055681.png"},
	}
	for _, c := range cases {
		if got := AssetURL(c.asset, c.appID); got != c.want {
			t.Errorf("AssetURL(%q): got %q, want %q", c.asset, got, c.want)
		}
	}
}

func TestTypeName(t *testing.T) {
	want := map[int]string{
		TypePlaying:   "playing",
		TypeStreaming: "streaming",
		TypeListening: "listening",
		TypeWatching:  "watching",
		TypeCustom:    "custom",
		TypeCompeting: "unknown",
		42:            "unknown",
	}
	for code, name := range want {
		if got := TypeName(code); got != name {
			t.Errorf("TypeName(%d): got %q, want %q", code, got, name)
		}
	}
}

func TestFromRaw_PrefersLargeAssets(t *testing.T) {
	a := FromRaw(RawActivity{
		Name:          "Spotify",
		Type:          TypeListening,
		Details:       str("Song"),
		ApplicationID: 1,
		Assets: &Assets{
			LargeImage: str("spotify:large"),
			LargeText:  str("Album"),
			SmallImage: str("small"),
			SmallText:  str("small text"),
		},
		Timestamps: &Timestamps{Start: u64(100), End: u64(200)},
	})

	if a.Type != "listening" {
		t.Errorf("Type: got %q, want listening", a.Type)
	}
	if a.AssetURL == nil || *a.AssetURL != "https://i.scdn.co/image/large" {
		t.Errorf("AssetURL: got %v", a.AssetURL)
	}
	if a.HoverText == nil || *a.HoverText != "Album" {
		t.Errorf("HoverText: got %v, want Album", a.HoverText)
	}
	if a.StartTime == nil || *a.StartTime != 100 || a.EndTime == nil || *a.EndTime != 200 {
		t.Errorf("timestamps: got %v..%v", a.StartTime, a.EndTime)
	}
}

func TestFromRaw_FallsBackToSmallAssets(t *testing.T) {
	a := FromRaw(RawActivity{
		Name:          "Game",
		ApplicationID: 77,
		Assets:        &Assets{SmallImage: str("icon"), SmallText: str("Level 3")},
	})
	if a.AssetURL == nil || *a.AssetURL != "https://cdn.discordapp.com/app-assets/77/icon.png" {
		t.Errorf("AssetURL: got %v", a.AssetURL)
	}
	if a.HoverText == nil || *a.HoverText != "Level 3" {
		t.Errorf("HoverText: got %v", a.HoverText)
	}
}

func TestFromPresence_EmptyIsNotNil(t *testing.T) {
	got := FromPresence(Presence{UserID: 1})
	if got == nil {
		t.Fatal("FromPresence: got nil, want empty slice")
	}
	b, _ := json.Marshal(got)
	if string(b) != "[]" {
		t.Errorf("JSON: got %s, want []", b)
	}
}

func TestActivity_JSONShape(t *testing.T) {
	b, err := json.Marshal(Activity{Name: "Foo", Type: "playing"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, k := range []string{"details", "hover_text", "asset_url"} {
		if _, ok := m[k]; ok {
			t.Errorf("%s: expected to be omitted", k)
		}
	}
	for _, k := range []string{"start_time", "end_time"} {
		if v, ok := m[k]; !ok || v != nil {
			t.Errorf("%s: got %v (present=%v), want null", k, v, ok)
		}
	}
}

func TestPresence_DecodesStringIDs(t *testing.T) {
	var p Presence
	err := json.Unmarshal([]byte(`{"user_id":"123456789012345678","activities":[{"name":"x","type":0,"application_id":"42"}]}`), &p)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.UserID != 123456789012345678 {
		t.Errorf("UserID: got %d", p.UserID)
	}
	if p.Activities[0].ApplicationID != 42 {
		t.Errorf("ApplicationID: got %d, want 42", p.Activities[0].ApplicationID)
	}
}

func TestEqual(t *testing.T) {
	a := []Activity{{Name: "Foo", Type: "playing", Details: str("x")}}
	b := []Activity{{Name: "Foo", Type: "playing", Details: str("x")}}
	c := []Activity{{Name: "Foo", Type: "playing", Details: str("y")}}

	if !Equal(a, b) {
		t.Error("Equal: identical values in distinct pointers should be equal")
	}
	if Equal(a, c) {
		t.Error("Equal: differing details should not be equal")
	}
	if Equal(a, nil) {
		t.Error("Equal: different lengths should not be equal")
	}
	if !Equal(nil, []Activity{}) {
		t.Error("Equal: nil and empty should be equal")
	}
}
