package kismia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	errs "matchcrawl/pkg/errors"
)

const (
	refreshPath = "/rest/v2/login/refresh_token"
	pickUpPath  = "/v3/matchesGame/users:pickUp"
	profilePath = "/rest/v2/user/info/profile"
	usersPath   = "/v3/matchesGame/users"

	// interactionMethod mirrors what the mobile SPA sends for feed swipes
	interactionMethod = "swipe"

	// xClientData is an opaque fingerprint header the discovery endpoint
	// expects; captured from a live mobile-web session.
	xClientData = "XbPVwbt9ro651,n2rVn1tyD069k,DJK6pat0XpVPn,J70RlrtM2GVlB"
)

// RefreshToken exchanges the current token pair for a fresh bundle. A 200
// response without a result object is a semantic failure: the server
// rejected the request body, so replaying it will not help.
func (c *Client) RefreshToken(ctx context.Context, accessToken, refreshToken string) (*RefreshResult, error) {
	body, err := json.Marshal(refreshRequest{
		RefreshToken: refreshToken,
		AccessToken:  accessToken,
	})
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, 0, "failed to encode refresh request: %v", err)
	}

	headers := c.commonHeaders("")
	headers.Set("content-type", "application/json")

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+refreshPath, body, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.ErrorTypeSemantic, resp.StatusCode,
			"refresh request failed with status %d", resp.StatusCode)
	}

	var decoded refreshResponse
	if err := decodeJSON(resp, &decoded); err != nil {
		return nil, err
	}

	if decoded.Result == nil {
		return nil, errs.New(errs.ErrorTypeSemantic, resp.StatusCode,
			"no result in refresh response")
	}

	return decoded.Result, nil
}

// PickUp fetches one page of the user discovery feed. An empty pageToken
// requests the first page.
func (c *Client) PickUp(ctx context.Context, accessToken, pageToken string) (*PickUpResponse, error) {
	endpoint := c.baseURL + pickUpPath
	if pageToken != "" {
		endpoint += "?pageToken=" + url.QueryEscape(pageToken)
	}

	headers := c.commonHeaders(accessToken)
	headers.Set("x-client-data", xClientData)

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.ErrorTypeSemantic, resp.StatusCode,
			"discovery page request failed with status %d", resp.StatusCode)
	}

	var page PickUpResponse
	if err := decodeJSON(resp, &page); err != nil {
		return nil, err
	}

	return &page, nil
}

// Profile fetches profile detail for a single user. An empty result set is
// not an error; the caller decides whether to retry later.
func (c *Client) Profile(ctx context.Context, accessToken, hid string) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("data_group", "profile")
	params.Set("users_hids[]", hid)
	endpoint := c.baseURL + profilePath + "?" + params.Encode()

	headers := c.commonHeaders(accessToken)
	headers.Set("accept-version", "3.0")
	headers.Set("cache-control", "no-cache")

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.ErrorTypeSemantic, resp.StatusCode,
			"profile fetch for hid %s failed with status %d", hid, resp.StatusCode)
	}

	var decoded ProfileResponse
	if err := decodeJSON(resp, &decoded); err != nil {
		return nil, err
	}

	return decoded.Result, nil
}

// Like registers a like interaction. The upstream answers 400 when the
// like is already registered, which is a success for our purposes: the
// interaction is idempotent.
func (c *Client) Like(ctx context.Context, accessToken, hid string, trackingData json.RawMessage) error {
	status, err := c.interact(ctx, accessToken, hid, "like", trackingData)
	if err != nil {
		return err
	}
	if status == http.StatusOK || status == http.StatusBadRequest {
		return nil
	}
	return errs.New(errs.ErrorTypeSemantic, status, "like for hid %s failed with status %d", hid, status)
}

// Pass registers a pass interaction
func (c *Client) Pass(ctx context.Context, accessToken, hid string, trackingData json.RawMessage) error {
	status, err := c.interact(ctx, accessToken, hid, "pass", trackingData)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	return errs.New(errs.ErrorTypeSemantic, status, "pass for hid %s failed with status %d", hid, status)
}

func (c *Client) interact(ctx context.Context, accessToken, hid, action string, trackingData json.RawMessage) (int, error) {
	body, err := json.Marshal(interactionRequest{
		InteractionMethod: interactionMethod,
		TrackingData:      trackingData,
	})
	if err != nil {
		return 0, errs.New(errs.ErrorTypeUnknown, 0, "failed to encode interaction request: %v", err)
	}

	endpoint := fmt.Sprintf("%s%s/%s:%s", c.baseURL, usersPath, url.PathEscape(hid), action)

	headers := c.commonHeaders(accessToken)
	headers.Set("content-type", "application/json")

	resp, err := c.do(ctx, http.MethodPost, endpoint, body, headers)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// decodeJSON reads and decodes a response body, classifying malformed
// payloads as parsing errors
func decodeJSON(resp *http.Response, target interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.New(errs.ErrorTypeTransport, resp.StatusCode,
			"failed to read response body: %v", err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return errs.New(errs.ErrorTypeParsing, resp.StatusCode,
			"failed to parse JSON (%v): %s", err, preview)
	}

	return nil
}
