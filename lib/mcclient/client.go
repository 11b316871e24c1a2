// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcclient is the HTTP client of the mission control daemon.
//
// Every method maps one endpoint of package api. Failed requests
// return *Error, which matches ErrNotFound, ErrInUse and the other
// sentinels with errors.Is according to its status code. The client
// sets no timeout of its own since long-poll requests are held open by
// the server; bound calls with their context.
package mcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/renderfleet/missioncontrol/lib/api"
	"github.com/renderfleet/missioncontrol/lib/asset"
	"github.com/renderfleet/missioncontrol/lib/config"
	"github.com/renderfleet/missioncontrol/lib/launchconfig"
	"github.com/renderfleet/missioncontrol/lib/payload"
	"github.com/renderfleet/missioncontrol/lib/version"
	"github.com/renderfleet/missioncontrol/lib/versioned"
)

// Sentinels matched by *Error.
var (
	ErrBadRequest        = errors.New("mcclient: bad request")
	ErrNotFound          = errors.New("mcclient: not found")
	ErrInUse             = errors.New("mcclient: in use")
	ErrIntegrity         = errors.New("mcclient: content does not match its checksum")
	ErrInsufficientSpace = errors.New("mcclient: insufficient storage")
)

// Error is a failed request.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

// Is matches the sentinel for the status code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrInUse:
		return e.StatusCode == http.StatusConflict
	case ErrIntegrity:
		return e.StatusCode == http.StatusUnprocessableEntity
	case ErrInsufficientSpace:
		return e.StatusCode == http.StatusInsufficientStorage
	}
	return false
}

// Client talks to one daemon. Safe for concurrent use.
type Client struct {
	base      string
	http      *http.Client
	userAgent string
}

// New returns a client for the daemon at baseURL, e.g.
// "http://127.0.0.1:8000". A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("mcclient: invalid daemon address: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("mcclient: daemon address %q must be an http or https URL", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		base:      strings.TrimSuffix(baseURL, "/") + api.Prefix,
		http:      httpClient,
		userAgent: version.UserAgent("missionctl"),
	}, nil
}

// do sends a request and decodes a JSON answer into out unless out is
// nil. It returns the status code of successful responses.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) (int, error) {
	request, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return 0, err
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	request.Header.Set("User-Agent", c.userAgent)

	response, err := c.http.Do(request)
	if err != nil {
		return 0, err
	}
	defer response.Body.Close()

	if response.StatusCode >= 400 {
		return response.StatusCode, decodeError(response)
	}
	if out != nil && response.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			return response.StatusCode, fmt.Errorf("mcclient: decoding %s %s: %w", method, path, err)
		}
	}
	return response.StatusCode, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}
	_, err := c.do(ctx, method, path, body, contentType, out)
	return err
}

func decodeError(response *http.Response) error {
	content, _ := io.ReadAll(io.LimitReader(response.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	message := strings.TrimSpace(string(content))
	if json.Unmarshal(content, &body) == nil && body.Error != "" {
		message = body.Error
	}
	if message == "" {
		message = http.StatusText(response.StatusCode)
	}
	return &Error{StatusCode: response.StatusCode, Message: message}
}

// ListAssets returns every asset, sorted by name.
func (c *Client) ListAssets(ctx context.Context) ([]asset.Asset, error) {
	var assets []asset.Asset
	return assets, c.doJSON(ctx, http.MethodGet, "/assets", nil, &assets)
}

// Asset returns one asset.
func (c *Client) Asset(ctx context.Context, id uuid.UUID) (asset.Asset, error) {
	var found asset.Asset
	return found, c.doJSON(ctx, http.MethodGet, "/assets/"+id.String(), nil, &found)
}

// AddAsset ingests an asset from a folder on the daemon's machine.
func (c *Client) AddAsset(ctx context.Context, request api.AddAssetRequest) (uuid.UUID, error) {
	var response api.AddAssetResponse
	return response.ID, c.doJSON(ctx, http.MethodPost, "/assets", request, &response)
}

// RemoveAsset deletes an asset.
func (c *Client) RemoveAsset(ctx context.Context, id uuid.UUID) error {
	return c.doJSON(ctx, http.MethodDelete, "/assets/"+id.String(), nil, nil)
}

// Payload returns a payload's file list.
func (c *Client) Payload(ctx context.Context, id uuid.UUID) (payload.Payload, error) {
	var found payload.Payload
	return found, c.doJSON(ctx, http.MethodGet, "/payloads/"+id.String(), nil, &found)
}

// Blob streams a blob's content. The caller closes the reader.
func (c *Client) Blob(ctx context.Context, id uuid.UUID) (io.ReadCloser, int64, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/blobs/"+id.String(), nil)
	if err != nil {
		return nil, 0, err
	}
	request.Header.Set("User-Agent", c.userAgent)
	response, err := c.http.Do(request)
	if err != nil {
		return nil, 0, err
	}
	if response.StatusCode != http.StatusOK {
		defer response.Body.Close()
		return nil, 0, decodeError(response)
	}
	return response.Body, response.ContentLength, nil
}

// Status returns the daemon's storage status.
func (c *Client) Status(ctx context.Context) (api.Status, error) {
	var status api.Status
	return status, c.doJSON(ctx, http.MethodGet, "/status", nil, &status)
}

// Config returns the daemon's configuration.
func (c *Client) Config(ctx context.Context) (config.Config, error) {
	var current config.Config
	return current, c.doJSON(ctx, http.MethodGet, "/config", nil, &current)
}

// LaunchConfiguration returns the launch configuration.
func (c *Client) LaunchConfiguration(ctx context.Context) (launchconfig.Configuration, error) {
	var current launchconfig.Configuration
	return current, c.doJSON(ctx, http.MethodGet, "/launchConfiguration", nil, &current)
}

// SetLaunchConfiguration replaces the launch configuration and returns
// it as stored.
func (c *Client) SetLaunchConfiguration(ctx context.Context, next launchconfig.Configuration) (launchconfig.Configuration, error) {
	var stored launchconfig.Configuration
	return stored, c.doJSON(ctx, http.MethodPut, "/launchConfiguration", next, &stored)
}

// PollObjects long-polls observable objects. An empty map means the
// server timed out with nothing new.
func (c *Client) PollObjects(ctx context.Context, requests []versioned.Request) (map[string]api.ObjectSnapshot, error) {
	ready := map[string]api.ObjectSnapshot{}
	_, err := c.do(ctx, http.MethodGet, "/objectsUpdate?"+pollQuery(requests), nil, "", &ready)
	return ready, err
}

// PollAssets long-polls the assets collection for changes after from.
// It returns nil when the server timed out with nothing new.
func (c *Client) PollAssets(ctx context.Context, from uint64) (*api.AssetsDelta, error) {
	ready := map[string]api.AssetsDelta{}
	query := pollQuery([]versioned.Request{{Name: api.CollectionAssets, FromVersion: from}})
	if _, err := c.do(ctx, http.MethodGet, "/incrementalCollectionsUpdate?"+query, nil, "", &ready); err != nil {
		return nil, err
	}
	delta, ok := ready[api.CollectionAssets]
	if !ok {
		return nil, nil
	}
	return &delta, nil
}

func pollQuery(requests []versioned.Request) string {
	values := url.Values{}
	for i, request := range requests {
		index := strconv.Itoa(i)
		values.Set("name"+index, request.Name)
		values.Set("fromVersion"+index, strconv.FormatUint(request.FromVersion, 10))
	}
	return values.Encode()
}
