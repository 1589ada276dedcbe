package extract

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
)

type fakeGenerator struct {
	reply  string
	err    error
	system string
	user   string
}

func (f *fakeGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	f.system = system
	f.user = user
	return f.reply, f.err
}

func TestParseReplyRich(t *testing.T) {
	reply := "Building Podcasts with Go\nWe walk through publishing episodes from the command line.\nTags: go, podcasting, #automation, Go"

	md, err := ParseReply(reply, true)
	if err != nil {
		t.Fatalf("ParseReply: %v", err)
	}
	if md.Title != "Building Podcasts with Go" {
		t.Fatalf("unexpected title %q", md.Title)
	}
	if md.Description != "We walk through publishing episodes from the command line." {
		t.Fatalf("unexpected description %q", md.Description)
	}
	want := []string{"go", "podcasting", "automation"}
	if !reflect.DeepEqual(md.Tags, want) {
		t.Fatalf("tags = %v, want %v", md.Tags, want)
	}
}

func TestParseReplySingleLineUsesPlaceholder(t *testing.T) {
	md, err := ParseReply("  Just a Title  \n\n", true)
	if err != nil {
		t.Fatalf("ParseReply: %v", err)
	}
	if md.Title != "Just a Title" {
		t.Fatalf("unexpected title %q", md.Title)
	}
	if md.Description != PlaceholderDescription {
		t.Fatalf("expected placeholder description, got %q", md.Description)
	}
	if len(md.Tags) != 0 {
		t.Fatalf("expected no tags, got %v", md.Tags)
	}
}

func TestParseReplyLabelsAndQuotes(t *testing.T) {
	reply := "**Title:** \"The Long Road\"\nDescription: A trip across the country.\nIt ends well.\nKeywords: travel, roads"

	md, err := ParseReply(reply, true)
	if err != nil {
		t.Fatalf("ParseReply: %v", err)
	}
	if md.Title != "The Long Road" {
		t.Fatalf("unexpected title %q", md.Title)
	}
	if md.Description != "A trip across the country. It ends well." {
		t.Fatalf("unexpected description %q", md.Description)
	}
	if !reflect.DeepEqual(md.Tags, []string{"travel", "roads"}) {
		t.Fatalf("unexpected tags %v", md.Tags)
	}
}

func TestParseReplyNumberedLines(t *testing.T) {
	reply := "1. My Title\n2. A description.\n3. Tags: a, b, c, d, e, f, g"

	md, err := ParseReply(reply, true)
	if err != nil {
		t.Fatalf("ParseReply: %v", err)
	}
	if md.Title != "My Title" {
		t.Fatalf("unexpected title %q", md.Title)
	}
	if md.Description != "A description." {
		t.Fatalf("unexpected description %q", md.Description)
	}
	if !reflect.DeepEqual(md.Tags, []string{"a", "b", "c", "d", "e"}) {
		t.Fatalf("expected tags capped at %d, got %v", maxTags, md.Tags)
	}
	if !strings.Contains(richPrompt, "up to five") || maxTags != 5 {
		t.Fatalf("prompt and tag limit disagree")
	}
}

func TestParseReplyMinimalIgnoresRest(t *testing.T) {
	md, err := ParseReply("Title Only\nSome description\nTags: a, b", false)
	if err != nil {
		t.Fatalf("ParseReply: %v", err)
	}
	if md.Title != "Title Only" || md.Description != "" || md.Tags != nil {
		t.Fatalf("unexpected minimal metadata %+v", md)
	}
}

func TestParseReplyErrors(t *testing.T) {
	if _, err := ParseReply(" \n\t\n", true); !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}
	if _, err := ParseReply("Title:\nsomething", true); !errors.Is(err, ErrMalformedReply) {
		t.Fatalf("expected ErrMalformedReply, got %v", err)
	}
}

func TestExtractorUsesModePrompt(t *testing.T) {
	gen := &fakeGenerator{reply: "A Title\nA description."}

	md, err := New(gen, true).Extract(context.Background(), "  the transcript  ")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if gen.system != richPrompt || gen.user != "the transcript" {
		t.Fatalf("unexpected prompt pair %q / %q", gen.system, gen.user)
	}
	if md.Description != "A description." {
		t.Fatalf("unexpected description %q", md.Description)
	}

	if _, err := New(gen, false).Extract(context.Background(), "the transcript"); err != nil {
		t.Fatalf("Extract minimal: %v", err)
	}
	if gen.system != minimalPrompt {
		t.Fatalf("expected minimal prompt, got %q", gen.system)
	}
}

func TestExtractorErrors(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("service unavailable")}
	if _, err := New(gen, true).Extract(context.Background(), "words"); err == nil {
		t.Fatalf("expected generator error to surface")
	}
	if _, err := New(&fakeGenerator{reply: "x"}, true).Extract(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for empty transcript")
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization %q", got)
		}

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-4" {
			t.Errorf("unexpected model %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages %+v", req.Messages)
		} else if req.Messages[1].Content != "transcript text" {
			t.Errorf("unexpected user content %q", req.Messages[1].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4","choices":[{"index":0,"message":{"role":"assistant","content":" Episode Title\nOne sentence. "},"finish_reason":"stop"}]}`)
	}))
	t.Cleanup(server.Close)

	gen := NewOpenAI("sk-test", Options{BaseURL: server.URL + "/v1"})
	reply, err := gen.Generate(context.Background(), "system prompt", "transcript text")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "Episode Title\nOne sentence." {
		t.Fatalf("unexpected reply %q", reply)
	}
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
}

func TestOpenAIGenerateEmptyAndErrors(t *testing.T) {
	status := http.StatusOK
	body := `{"choices":[]}`
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)

	gen := NewOpenAI("sk-test", Options{BaseURL: server.URL + "/v1"})
	if _, err := gen.Generate(context.Background(), "s", "u"); !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}

	status = http.StatusInternalServerError
	body = `{"error":{"message":"boom","type":"server_error"}}`
	atomic.StoreInt32(&calls, 0)
	if _, err := gen.Generate(context.Background(), "s", "u"); err == nil {
		t.Fatalf("expected error on 500")
	}
	if calls != 1 {
		t.Fatalf("expected no retries, got %d calls", calls)
	}
}

func TestGeminiGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "gemini-test:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "transcript text") || !strings.Contains(string(body), "system prompt") {
			t.Errorf("expected transcript and system instruction in body: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Gemini Title\n"},{"text":"A summary."}]},"finishReason":"STOP"}]}`)
	}))
	t.Cleanup(server.Close)

	gen, err := NewGemini(context.Background(), "g-key", Options{Model: "gemini-test", BaseURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	reply, err := gen.Generate(context.Background(), "system prompt", "transcript text")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "Gemini Title\nA summary." {
		t.Fatalf("unexpected reply %q", reply)
	}
}
