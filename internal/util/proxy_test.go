package util

import (
	"net/http"
	"testing"
	"time"
)

func TestNewProxyFunc_Explicit(t *testing.T) {
	proxy := NewProxyFunc("http://proxy:3128", "http://secure-proxy:3128", "qdrant,localhost")

	req, _ := http.NewRequest(http.MethodGet, "https://api.openai.com/v1/chat", nil)
	u, err := proxy(req)
	if err != nil {
		t.Fatalf("proxy failed: %v", err)
	}
	if u == nil || u.Host != "secure-proxy:3128" {
		t.Errorf("expected https proxy, got %v", u)
	}

	req, _ = http.NewRequest(http.MethodGet, "http://ollama:11434/api/generate", nil)
	u, _ = proxy(req)
	if u == nil || u.Host != "proxy:3128" {
		t.Errorf("expected http proxy, got %v", u)
	}

	req, _ = http.NewRequest(http.MethodGet, "http://qdrant:6333/collections", nil)
	u, _ = proxy(req)
	if u != nil {
		t.Errorf("expected no proxy for excluded host, got %v", u)
	}
}

func TestNewHTTPClient_Timeout(t *testing.T) {
	client := NewHTTPClient(5, "", "", "")
	if client.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", client.Timeout)
	}
	if NewHTTPClient(0, "", "", "").Timeout != 0 {
		t.Error("expected no timeout for zero seconds")
	}
}
