package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

// testPNG carries the PNG signature, which is all content sniffing needs.
var testPNG = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

func doRequest(t *testing.T, ts *httptest.Server, method, path string, payload any) *http.Response {
	t.Helper()
	return doAuthedRequest(t, ts, method, path, payload, "")
}

func doAuthedRequest(t *testing.T, ts *httptest.Server, method, path string, payload any, token string) *http.Response {
	t.Helper()
	var body io.Reader = bytes.NewReader(nil)
	switch p := payload.(type) {
	case nil:
	case string:
		body = bytes.NewReader([]byte(p))
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	return resp
}

func uploadMapImage(t *testing.T, ts *httptest.Server, gameID uint, field string, data []byte, token string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, "map.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/map/uploadMap/"+strconv.FormatUint(uint64(gameID), 10), &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func expectStatus(t *testing.T, resp *http.Response, status int) {
	t.Helper()
	if resp.StatusCode != status {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", status, resp.StatusCode, data)
	}
}

func mapPath(gameID uint) string {
	return "/map/" + strconv.FormatUint(uint64(gameID), 10)
}

func savePath(gameID uint) string {
	return "/map/saveMapStatus/" + strconv.FormatUint(uint64(gameID), 10)
}

func strokePayload(color string, points ...[2]float64) map[string]any {
	pts := make([]map[string]float64, 0, len(points))
	for _, p := range points {
		pts = append(pts, map[string]float64{"x": p[0], "y": p[1]})
	}
	return map[string]any{"color": color, "size": 3, "points": pts}
}
