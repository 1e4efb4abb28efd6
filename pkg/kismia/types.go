package kismia

import "encoding/json"

// The upstream API is an opaque JSON contract. Only the fields this
// crawler actually reads get named accessors; everything else rides along
// as raw bytes.

// HitUser carries the only field of a discovered user the crawler keys on.
type HitUser struct {
	Hid string `json:"hid"`
}

// Hit is one entry of the discovery feed. Raw preserves the complete
// payload for persistence.
type Hit struct {
	User         HitUser         `json:"user"`
	TrackingData json.RawMessage `json:"trackingData,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the named fields and keeps the original bytes.
func (h *Hit) UnmarshalJSON(data []byte) error {
	type alias Hit
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*h = Hit(a)
	h.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// PickUpResponse is one page of the discovery feed. An absent
// NextPageToken means the walk reached the end of the feed.
type PickUpResponse struct {
	Hits          []Hit  `json:"hits"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// ProfileResponse wraps the profile-detail result set
type ProfileResponse struct {
	Result []json.RawMessage `json:"result"`
}

// RefreshResult is the token bundle returned by the refresh exchange
type RefreshResult struct {
	AccessToken struct {
		AccessToken string `json:"access_token"`
	} `json:"accessToken"`
	RefreshToken struct {
		RefreshToken string `json:"refresh_token"`
	} `json:"refreshToken"`
	AuthToken string `json:"authToken"`
	AuthKey   string `json:"authKey"`
}

type refreshResponse struct {
	Result *RefreshResult `json:"result"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token"`
}

type interactionRequest struct {
	InteractionMethod string          `json:"interactionMethod"`
	TrackingData      json.RawMessage `json:"trackingData,omitempty"`
}
