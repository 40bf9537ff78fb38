package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGeminiGenerateContentWireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/models/gemini-2.0-flash:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		contents := body["contents"].([]any)
		parts := contents[0].(map[string]any)["parts"].([]any)
		if got := parts[0].(map[string]any)["text"]; got != "system\n\nhello" {
			t.Errorf("prompt text = %q", got)
		}
		cfg := body["generationConfig"].(map[string]any)
		if cfg["temperature"] != 0.7 || cfg["maxOutputTokens"] != float64(4096) {
			t.Errorf("generationConfig = %v", cfg)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hi there"}]}}]}`))
	}))
	defer srv.Close()

	client, err := NewGeminiClient("test-key", WithGeminiBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	gen := NewGeminiGenerator(client, "models/gemini-2.0-flash")
	got, err := gen.GenerateText(context.Background(), "system", "hello", Options{Temperature: Temperature(0.7), MaxOutputTokens: 4096})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "hi there" {
		t.Fatalf("text = %q", got)
	}
}

func TestGeminiErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantAPI bool
		wantErr error
	}{
		{name: "api error message", status: http.StatusTooManyRequests, body: `{"error":{"code":429,"message":"quota"}}`, wantAPI: true},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`, wantErr: ErrEmptyResponse},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			client, _ := NewGeminiClient("k", WithGeminiBaseURL(srv.URL))
			_, err := client.GenerateContent(context.Background(), "", "", "prompt", Options{})
			if err == nil {
				t.Fatal("expected error")
			}
			var apiErr *APIError
			if tc.wantAPI {
				if !errors.As(err, &apiErr) || apiErr.Message != "quota" || !apiErr.Temporary() {
					t.Fatalf("unexpected error %v", err)
				}
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	if _, err := NewGeminiClient("  "); err == nil {
		t.Fatal("expected error for blank key")
	}
}

func TestNewTextGenerator(t *testing.T) {
	if _, err := NewTextGenerator(ProviderConfig{Provider: "gemini"}); err == nil {
		t.Fatal("gemini without key should fail")
	}
	if _, err := NewTextGenerator(ProviderConfig{Provider: "openai-compat"}); err == nil {
		t.Fatal("openai-compat without base URL should fail")
	}
	if _, err := NewTextGenerator(ProviderConfig{Provider: "bard"}); err == nil {
		t.Fatal("unknown provider should fail")
	}
	gen, err := NewTextGenerator(ProviderConfig{Provider: "ollama", Model: "llama3"})
	if err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if _, ok := gen.(*OllamaGenerator); !ok {
		t.Fatalf("got %T", gen)
	}
}

func TestOllamaGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/api/chat" || req.Model != "llama3" || req.Options == nil || req.Options.NumPredict != 200 {
			t.Errorf("unexpected request %s %+v", r.URL.Path, req)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"ok"}}`))
	}))
	defer srv.Close()

	got, err := NewOllamaGenerator(NewOllamaClient(srv.URL), "llama3").GenerateText(context.Background(), "", "q", Options{MaxOutputTokens: 200})
	if err != nil || got != "ok" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestOpenAICompatGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"pong"}}]}`))
	}))
	defer srv.Close()

	got, err := NewOpenAICompatGenerator(srv.URL+"/", "sk-test", "m").GenerateText(context.Background(), "sys", "ping", Options{})
	if err != nil || got != "pong" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestZeroTemperatureIsSent(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		generate func(baseURL string) (string, error)
		temp     func(body map[string]any) (any, bool)
	}{
		{
			name:  "gemini",
			reply: `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`,
			generate: func(baseURL string) (string, error) {
				client, _ := NewGeminiClient("k", WithGeminiBaseURL(baseURL))
				return client.GenerateContent(context.Background(), "m", "", "q", Options{Temperature: Temperature(0)})
			},
			temp: func(body map[string]any) (any, bool) {
				cfg, _ := body["generationConfig"].(map[string]any)
				v, ok := cfg["temperature"]
				return v, ok
			},
		},
		{
			name:  "ollama",
			reply: `{"message":{"role":"assistant","content":"ok"}}`,
			generate: func(baseURL string) (string, error) {
				return NewOllamaGenerator(NewOllamaClient(baseURL), "llama3").GenerateText(context.Background(), "", "q", Options{Temperature: Temperature(0)})
			},
			temp: func(body map[string]any) (any, bool) {
				opts, _ := body["options"].(map[string]any)
				v, ok := opts["temperature"]
				return v, ok
			},
		},
		{
			name:  "openai-compat",
			reply: `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`,
			generate: func(baseURL string) (string, error) {
				gen, err := NewTextGenerator(ProviderConfig{Provider: "openai-compat", BaseURL: baseURL, Model: "m"})
				if err != nil {
					return "", err
				}
				return gen.GenerateText(context.Background(), "", "q", Options{Temperature: Temperature(0)})
			},
			temp: func(body map[string]any) (any, bool) {
				v, ok := body["temperature"]
				return v, ok
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body map[string]any
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("decode body: %v", err)
				}
				if v, ok := tc.temp(body); !ok || v != float64(0) {
					t.Errorf("temperature = %v (present %v), want 0", v, ok)
				}
				_, _ = w.Write([]byte(tc.reply))
			}))
			defer srv.Close()
			if _, err := tc.generate(srv.URL); err != nil {
				t.Fatalf("generate: %v", err)
			}
		})
	}
}
