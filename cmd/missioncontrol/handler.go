// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/renderfleet/missioncontrol/lib/api"
	"github.com/renderfleet/missioncontrol/lib/asset"
	"github.com/renderfleet/missioncontrol/lib/blobstore"
	"github.com/renderfleet/missioncontrol/lib/config"
	"github.com/renderfleet/missioncontrol/lib/launchcatalog"
	"github.com/renderfleet/missioncontrol/lib/launchconfig"
	"github.com/renderfleet/missioncontrol/lib/payload"
	"github.com/renderfleet/missioncontrol/lib/service"
	"github.com/renderfleet/missioncontrol/lib/versioned"
)

// maxRequestBody bounds JSON request bodies. Uploads are not bounded.
const maxRequestBody = 1 << 20

// errBadRequest marks malformed requests.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func (d *daemon) routes() http.Handler {
	mux := http.NewServeMux()
	prefix := api.Prefix

	mux.HandleFunc("GET "+prefix+"/assets", d.handleListAssets)
	mux.HandleFunc("GET "+prefix+"/assets/{id}", d.handleGetAsset)
	mux.HandleFunc("POST "+prefix+"/assets", d.handleAddAsset)
	mux.HandleFunc("POST "+prefix+"/assets/upload", d.handleUploadAsset)
	mux.HandleFunc("DELETE "+prefix+"/assets/{id}", d.handleRemoveAsset)
	mux.HandleFunc("GET "+prefix+"/blobs/{id}", d.handleGetBlob)
	mux.HandleFunc("GET "+prefix+"/payloads/{id}", d.handleGetPayload)
	mux.HandleFunc("GET "+prefix+"/objectsUpdate", d.handleLongPoll(d.objects))
	mux.HandleFunc("GET "+prefix+"/incrementalCollectionsUpdate", d.handleLongPoll(d.collections))
	mux.HandleFunc("GET "+prefix+"/status", d.handleStatus)
	mux.HandleFunc("GET "+prefix+"/config", d.handleGetConfig)
	mux.HandleFunc("PUT "+prefix+"/config", d.handlePutConfig)
	mux.HandleFunc("GET "+prefix+"/launchConfiguration", d.handleGetLaunchConfiguration)
	mux.HandleFunc("PUT "+prefix+"/launchConfiguration", d.handlePutLaunchConfiguration)

	return service.LogRequests(mux, d.logger, d.clock)
}

// statusFor maps an error to the HTTP status reporting it. Integrity
// failures are checked before manifest errors since ingestion reports
// them wrapped in one.
func statusFor(err error) int {
	var integrity *blobstore.IntegrityError
	var capacity *blobstore.CapacityError
	var manifest *launchcatalog.ManifestError
	switch {
	case errors.As(err, &integrity):
		return http.StatusUnprocessableEntity
	case errors.As(err, &capacity):
		return http.StatusInsufficientStorage
	case errors.As(err, &manifest),
		errors.Is(err, errBadRequest),
		errors.Is(err, config.ErrInvalid),
		errors.Is(err, launchconfig.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, asset.ErrNotFound),
		errors.Is(err, blobstore.ErrNotFound),
		errors.Is(err, payload.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, asset.ErrAssetInUse):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// unbounded lifts the server write deadline for handlers whose run
// time grows with the content they move.
func (d *daemon) unbounded(writer http.ResponseWriter, request *http.Request) {
	if err := service.LiftWriteDeadline(writer); err != nil {
		d.logger.Warn("cannot lift write deadline", "path", request.URL.Path, "error", err)
	}
}

func (d *daemon) fail(writer http.ResponseWriter, request *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		d.logger.Error("request failed",
			"method", request.Method,
			"path", request.URL.Path,
			"error", err,
		)
	}
	service.WriteError(writer, status, err)
}

func pathID(request *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(request.PathValue("id"))
	if err != nil {
		return uuid.Nil, badRequest("invalid id %q", request.PathValue("id"))
	}
	return id, nil
}

func decodeJSON(writer http.ResponseWriter, request *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(writer, request.Body, maxRequestBody))
	decoder.UseNumber()
	if err := decoder.Decode(v); err != nil {
		return badRequest("decoding request body: %v", err)
	}
	return nil
}

func (d *daemon) handleListAssets(writer http.ResponseWriter, request *http.Request) {
	service.WriteJSON(writer, http.StatusOK, d.assets.List())
}

func (d *daemon) handleGetAsset(writer http.ResponseWriter, request *http.Request) {
	id, err := pathID(request)
	if err != nil {
		d.fail(writer, request, err)
		return
	}
	found, err := d.assets.Get(id)
	if err != nil {
		d.fail(writer, request, err)
		return
	}
	service.WriteJSON(writer, http.StatusOK, found)
}

func (d *daemon) handleAddAsset(writer http.ResponseWriter, request *http.Request) {
	d.unbounded(writer, request)
	var body api.AddAssetRequest
	if err := decodeJSON(writer, request, &body); err != nil {
		d.fail(writer, request, err)
		return
	}
	root, err := localFolder(body.URL)
	if err != nil {
		d.fail(writer, request, err)
		return
	}
	if info, err := d.sources.Stat(root); err != nil || !info.IsDir() {
		d.fail(writer, request, badRequest("%s is not a readable folder", root))
		return
	}

	id, err := d.assets.AddAsset(request.Context(), asset.Info{Name: body.Name, Description: body.Description},
		asset.NewFolderSource(d.sources, root))
	if err != nil {
		d.fail(writer, request, err)
		return
	}
	service.WriteJSON(writer, http.StatusCreated, api.AddAssetResponse{ID: id})
}

// localFolder accepts an absolute path or a file:// URL.
func localFolder(location string) (string, error) {
	path := location
	if strings.Contains(location, "://") {
		parsed, err := url.Parse(location)
		if err != nil {
			return "", badRequest("invalid url %q: %v", location, err)
		}
		if parsed.Scheme != "file" || (parsed.Host != "" && parsed.Host != "localhost") {
			return "", badRequest("url %q is not a local folder", location)
		}
		path = parsed.Path
	}
	if !filepath.IsAbs(path) {
		return "", badRequest("folder %q is not an absolute path", location)
	}
	return filepath.Clean(path), nil
}

func (d *daemon) handleUploadAsset(writer http.ResponseWriter, request *http.Request) {
	d.unbounded(writer, request)
	reader, err := request.MultipartReader()
	if err != nil {
		d.fail(writer, request, badRequest("expected a multipart body: %v", err))
		return
	}
	source, info, err := asset.SpoolMultipart(reader, d.uploadDir)
	if err != nil {
		d.fail(writer, request, err)
		return
	}
	defer source.Close()

	id, err := d.assets.AddAsset(request.Context(), info, source)
	if err != nil {
		d.fail(writer, request, err)
		return
	}
	service.WriteJSON(writer, http.StatusCreated, api.AddAssetResponse{ID: id})
}

func (d *daemon) handleRemoveAsset(writer http.ResponseWriter, request *http.Request) {
	id, err := pathID(request)
	if err != nil {
		d.fail(writer, request, err)
		return
	}
	if err := d.assets.RemoveAsset(request.Context(), id); err != nil {
		d.fail(writer, request, err)
		return
	}
	service.WriteJSON(writer, http.StatusOK, api.AddAssetResponse{ID: id})
}

func (d *daemon) handleGetBlob(writer http.ResponseWriter, request *http.Request) {
	d.unbounded(writer, request)
	id, err := pathID(request)
	if err != nil {
		d.fail(writer, request, err)
		return
	}
	lock, err := d.blobs.Lock(id)
	if err != nil {
		d.fail(writer, request, err)
		return
	}
	defer lock.Release()

	content, err := lock.Open()
	if err != nil {
		d.fail(writer, request, err)
		return
	}
	defer content.Close()

	writer.Header().Set("Content-Type", "application/octet-stream")
	writer.Header().Set("Content-Length", strconv.FormatInt(lock.Size, 10))
	if _, err := io.Copy(writer, content); err != nil {
		d.logger.Warn("streaming blob interrupted", "blob_id", id, "error", err)
	}
}

func (d *daemon) handleGetPayload(writer http.ResponseWriter, request *http.Request) {
	id, err := pathID(request)
	if err != nil {
		d.fail(writer, request, err)
		return
	}
	found, err := d.payloads.Get(id)
	if err != nil {
		d.fail(writer, request, err)
		return
	}
	service.WriteJSON(writer, http.StatusOK, found)
}

func (d *daemon) handleStatus(writer http.ResponseWriter, request *http.Request) {
	status, _ := d.status.Get()
	service.WriteJSON(writer, http.StatusOK, status)
}

func (d *daemon) handleGetConfig(writer http.ResponseWriter, request *http.Request) {
	service.WriteJSON(writer, http.StatusOK, d.config.Current())
}

// handlePutConfig applies a configuration. Fields missing from the
// body keep their current value.
func (d *daemon) handlePutConfig(writer http.ResponseWriter, request *http.Request) {
	next := d.config.Current()
	if err := decodeJSON(writer, request, &next); err != nil {
		d.fail(writer, request, err)
		return
	}
	if err := d.config.Apply(request.Context(), next); err != nil {
		d.fail(writer, request, err)
		return
	}
	service.WriteJSON(writer, http.StatusOK, d.config.Current())
}

func (d *daemon) handleGetLaunchConfiguration(writer http.ResponseWriter, request *http.Request) {
	current, _ := d.launch.Get()
	service.WriteJSON(writer, http.StatusOK, current)
}

func (d *daemon) handlePutLaunchConfiguration(writer http.ResponseWriter, request *http.Request) {
	var next launchconfig.Configuration
	if err := decodeJSON(writer, request, &next); err != nil {
		d.fail(writer, request, err)
		return
	}
	if err := d.launch.Set(request.Context(), next); err != nil {
		d.fail(writer, request, err)
		return
	}
	current, _ := d.launch.Get()
	service.WriteJSON(writer, http.StatusOK, current)
}

// handleLongPoll serves a long-poll over catalog. See package api for
// the protocol.
func (d *daemon) handleLongPoll(catalog *versioned.Catalog) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		requests, err := parseLongPoll(request.URL.Query())
		if err != nil {
			d.fail(writer, request, err)
			return
		}
		if len(requests) == 0 {
			writer.WriteHeader(http.StatusNoContent)
			return
		}

		ready, err := catalog.Wait(request.Context(), requests)
		switch {
		case errors.Is(err, versioned.ErrUnknownName):
			d.fail(writer, request, badRequest("%v", err))
		case err != nil:
			// The client went away or the server is shutting down.
			writer.WriteHeader(http.StatusServiceUnavailable)
		case len(ready) == 0:
			writer.WriteHeader(http.StatusNoContent)
		default:
			service.WriteJSON(writer, http.StatusOK, ready)
		}
	}
}

// parseLongPoll reads name0/fromVersion0, name1/fromVersion1, ... up
// to the first missing name. Indexed keys past that point are
// rejected rather than ignored.
func parseLongPoll(query url.Values) ([]versioned.Request, error) {
	var requests []versioned.Request
	for i := 0; ; i++ {
		index := strconv.Itoa(i)
		name := query.Get("name" + index)
		if name == "" {
			break
		}
		text := query.Get("fromVersion" + index)
		if text == "" {
			return nil, badRequest("name%s has no fromVersion%s", index, index)
		}
		from, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return nil, badRequest("fromVersion%s: invalid version %q", index, text)
		}
		requests = append(requests, versioned.Request{Name: name, FromVersion: from})
	}
	for key := range query {
		if index, ok := longPollIndex(key); ok && index >= len(requests) {
			return nil, badRequest("%s without name%d", key, len(requests))
		}
	}
	return requests, nil
}

// longPollIndex returns i for a key of the form name<i> or
// fromVersion<i>.
func longPollIndex(key string) (int, bool) {
	for _, prefix := range []string{"name", "fromVersion"} {
		digits, ok := strings.CutPrefix(key, prefix)
		if !ok || digits == "" {
			continue
		}
		index, err := strconv.Atoi(digits)
		if err != nil || index < 0 {
			return 0, false
		}
		return index, true
	}
	return 0, false
}
