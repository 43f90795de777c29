package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"archivio/internal"
	"archivio/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, fn roundTripFunc) *Client {
	t.Helper()
	cfg := config.Config{
		APIToken:        "test",
		APIBaseURL:      "https://example.test/api/v1",
		APIRateLimitRPS: 1000,
		APITimeoutMs:    1000,
		APIMaxAttempts:  3,
	}
	client := NewClient(cfg)
	client.backoffBase = time.Millisecond
	client.httpClient = &http.Client{Transport: fn}
	return client
}

func jsonResponse(status int, payload any) *http.Response {
	blob, _ := json.Marshal(payload)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(string(blob))),
		Header:     make(http.Header),
	}
}

func rawResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestGetSessionWithRetry(t *testing.T) {
	attempt := 0
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/api/v1/import-sessions/s-1" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test" {
			t.Fatalf("missing bearer token")
		}
		attempt++
		if attempt == 1 {
			return rawResponse(http.StatusBadGateway, `<html><title>502</title></html>`), nil
		}
		return jsonResponse(http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"id":                 "s-1",
				"import_kind":        "payslip",
				"source_archive_ref": "arch-1",
				"candidates": []map[string]any{
					{"uuid": "c-1", "source_filename": "rossi.pdf", "status": "pending", "extracted_fields": map[string]any{"periodo": "2026-01"}},
					{"uuid": "c-2", "source_filename": "bianchi.pdf", "status": "imported", "created_document_ref": "doc-7"},
				},
			},
		}), nil
	})

	session, err := client.GetSession(context.Background(), "s-1")
	if err != nil {
		t.Fatal(err)
	}
	if attempt != 2 {
		t.Fatalf("attempts=%d", attempt)
	}
	if len(session.Candidates) != 2 {
		t.Fatalf("len=%d", len(session.Candidates))
	}
	if session.Path != internal.PathPerCandidate {
		t.Fatalf("path=%s", session.Path)
	}
	if session.Verdicts.Checked {
		t.Fatal("verdicts must start unchecked")
	}
}

func TestConfirmDoesNotRetryServerErrors(t *testing.T) {
	attempt := 0
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		attempt++
		return rawResponse(http.StatusInternalServerError, `{"success":false,"message":"boom"}`), nil
	})

	_, err := client.ConfirmCandidate(context.Background(), "s-1", "c-1", internal.ConfirmRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempt != 1 {
		t.Fatalf("attempts=%d", attempt)
	}
}

func TestConfirmOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		resp   *http.Response
		status internal.CommitStatus
		check  func(t *testing.T, res internal.CommitResponse)
	}{
		{
			name:   "success",
			resp:   jsonResponse(http.StatusCreated, map[string]any{"success": true, "data": map[string]any{"document_ref": "doc-9"}}),
			status: internal.CommitSuccess,
			check: func(t *testing.T, res internal.CommitResponse) {
				if res.DocumentRef != "doc-9" {
					t.Fatalf("ref=%s", res.DocumentRef)
				}
			},
		},
		{
			name: "conflict",
			resp: jsonResponse(http.StatusConflict, map[string]any{
				"success": false,
				"message": "documento già presente",
				"data": map[string]any{"duplicate_info": map[string]any{
					"existing_ref": "doc-3", "confidence": 0.97, "matched_fields": []string{"codice_fiscale", "periodo"},
				}},
			}),
			status: internal.CommitConflict,
			check: func(t *testing.T, res internal.CommitResponse) {
				if res.DuplicateInfo == nil || res.DuplicateInfo.ExistingRef != "doc-3" {
					t.Fatalf("duplicate info=%+v", res.DuplicateInfo)
				}
				if len(res.DuplicateInfo.MatchedFields) != 2 {
					t.Fatalf("matched=%v", res.DuplicateInfo.MatchedFields)
				}
			},
		},
		{
			name:   "validation",
			resp:   jsonResponse(http.StatusUnprocessableEntity, map[string]any{"success": false, "errors": map[string][]string{"periodo": {"formato non valido"}}}),
			status: internal.CommitError,
			check: func(t *testing.T, res internal.CommitResponse) {
				if res.Detail != "periodo: formato non valido" {
					t.Fatalf("detail=%q", res.Detail)
				}
			},
		},
		{
			name:   "html gateway page",
			resp:   rawResponse(http.StatusRequestEntityTooLarge, `<!DOCTYPE html><html><head><title>413 Request Entity Too Large</title></head><body><h1>Request Entity Too Large</h1><script>x()</script></body></html>`),
			status: internal.CommitError,
			check: func(t *testing.T, res internal.CommitResponse) {
				if res.Detail != "413 Request Entity Too Large: Request Entity Too Large" {
					t.Fatalf("detail=%q", res.Detail)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
				if r.Method != http.MethodPost || r.URL.Path != "/api/v1/import-sessions/s-1/candidates/c-1/confirm" {
					t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
				}
				var req internal.ConfirmRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Fatal(err)
				}
				if req.Policy != internal.PolicyReplace || req.EditedFields["netto"] != "1500.00" {
					t.Fatalf("request=%+v", req)
				}
				return tc.resp, nil
			})
			res, err := client.ConfirmCandidate(context.Background(), "s-1", "c-1", internal.ConfirmRequest{
				EditedFields: map[string]any{"netto": "1500.00"},
				Policy:       internal.PolicyReplace,
			})
			if err != nil {
				t.Fatal(err)
			}
			if res.Status != tc.status {
				t.Fatalf("status=%s", res.Status)
			}
			tc.check(t, res)
		})
	}
}

func TestCheckDuplicates(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/api/v1/import-sessions/s-1/duplicates" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		return jsonResponse(http.StatusOK, map[string]any{"success": true, "data": map[string]any{"verdicts": []map[string]any{
			{"candidate_id": "c-1", "is_duplicate": true, "matched_existing_ref": "doc-1", "confidence": 0.9, "matched_fields": []string{"periodo"}},
			{"candidate_id": "c-2", "is_duplicate": false, "confidence": 0.05},
		}}}), nil
	})

	verdicts, err := client.CheckDuplicates(context.Background(), &internal.ImportSession{ID: "s-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(verdicts) != 2 || !verdicts["c-1"].IsDuplicate || verdicts["c-2"].IsDuplicate {
		t.Fatalf("verdicts=%+v", verdicts)
	}
}

func TestResolveArchiveNotFound(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, map[string]any{"success": false, "message": "not found"}), nil
	})
	ok, err := client.ResolveArchive(context.Background(), "arch-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("archive should not resolve")
	}
}

func TestCommitWholeArchiveConflict(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/api/v1/documents/archive-import" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		return jsonResponse(http.StatusConflict, map[string]any{"success": false, "data": map[string]any{"existing_ref": "doc-5", "confidence": 1}}), nil
	})
	res, err := client.CommitWholeArchive(context.Background(), internal.ArchiveCommitRequest{ArchiveRef: "arch-1", Kind: internal.KindPayslip})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.DuplicateInfo == nil || res.DuplicateInfo.ExistingRef != "doc-5" {
		t.Fatalf("res=%+v", res)
	}
}

func TestMissingToken(t *testing.T) {
	client := NewClient(config.Config{APIBaseURL: "https://example.test"})
	if _, err := client.GetSession(context.Background(), "s-1"); err == nil {
		t.Fatal("expected missing token error")
	}
}

func TestCreateSessionUploadsMultipart(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/import-sessions" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		if got := r.FormValue("import_kind"); got != "payslip" {
			t.Fatalf("import_kind=%q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatal(err)
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		if header.Filename != "settembre.zip" || string(content) != "zip-bytes" {
			t.Fatalf("file=%s content=%q", header.Filename, content)
		}
		return jsonResponse(http.StatusCreated, map[string]any{
			"success": true,
			"data": map[string]any{
				"id":                 "s-9",
				"import_kind":        "payslip",
				"source_archive_ref": "arch-9",
				"candidates": []map[string]any{
					{"uuid": "c-1", "source_filename": "rossi.pdf", "status": "pending"},
				},
			},
		}), nil
	})

	session, err := client.CreateSession(context.Background(), internal.KindPayslip, "settembre.zip", []byte("zip-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if session.ID != "s-9" || len(session.Candidates) != 1 {
		t.Fatalf("session=%+v", session)
	}
	if session.Path != internal.PathUndecided {
		t.Fatalf("path=%s", session.Path)
	}
}

func TestSkipRetriesTooManyRequests(t *testing.T) {
	attempt := 0
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/api/v1/import-sessions/s-1/candidates/c-2/skip" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		attempt++
		if attempt == 1 {
			return rawResponse(http.StatusTooManyRequests, ""), nil
		}
		return jsonResponse(http.StatusOK, map[string]any{"success": true}), nil
	})

	if err := client.SkipCandidate(context.Background(), "s-1", "c-2"); err != nil {
		t.Fatal(err)
	}
	if attempt != 2 {
		t.Fatalf("attempts=%d", attempt)
	}
}

func TestSkipRejected(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnprocessableEntity, map[string]any{"success": false, "errors": []string{"candidate already imported"}}), nil
	})

	err := client.SkipCandidate(context.Background(), "s-1", "c-2")
	if err == nil || !strings.Contains(err.Error(), "candidate already imported") {
		t.Fatalf("err=%v", err)
	}
}
