package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

// Request records. Each JSON endpoint decodes into exactly one of these;
// unknown fields are rejected so typos fail loudly instead of silently.

type clearRequest struct {
	Label string `json:"label"`
}

type bootRequest struct {
	Label string `json:"label"`
}

type kvSetRequest struct {
	Label     string `json:"label"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Type      uint8  `json:"type"`
	Value     string `json:"value"`
}

type kvDeleteRequest struct {
	Label     string `json:"label"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
}

type fileDeleteRequest struct {
	Label string `json:"label"`
	Name  string `json:"name"`
}

// Response records.

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type uploadResponse struct {
	Label         string `json:"label"`
	BytesReceived int64  `json:"bytes_received"`
	PagesCompared int    `json:"pages_compared"`
	PagesWritten  int    `json:"pages_written"`
}

type bootResponse struct {
	BootTarget string `json:"boot_target"`
	Running    string `json:"running"`
}

type kvListResponse struct {
	Entries []types.KVEntry `json:"entries"`
}

type fileListResponse struct {
	Files []types.FileInfo `json:"files"`
}

// decodeJSON reads one JSON value from the body into dst, rejecting unknown
// fields, trailing data, and bodies over MaxJSONBody.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &types.Error{Kind: types.ErrKindValidation, Msg: "malformed request body", Err: err}
	}
	if dec.More() {
		return &types.Error{Kind: types.ErrKindValidation, Msg: "trailing data after request body"}
	}
	io.Copy(io.Discard, r.Body)
	return nil
}
