package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid",
			config: Config{BaseURL: "http://localhost:8080/v1", Model: "BAAI/bge-small-en-v1.5"},
		},
		{
			name:    "missing base URL",
			config:  Config{Model: "BAAI/bge-small-en-v1.5"},
			wantErr: true,
		},
		{
			name:    "missing model",
			config:  Config{BaseURL: "http://localhost:8080/v1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestServiceDimension(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"BAAI/bge-small-en-v1.5", 384},
		{"BAAI/bge-base-en-v1.5", 768},
		{"BAAI/bge-large-en-v1.5", 1024},
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"unknown-model", 384},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			svc, err := NewService(Config{BaseURL: "http://localhost:8080/v1", Model: tt.model})
			if err != nil {
				t.Fatalf("NewService() error = %v", err)
			}
			if got := svc.Dimension(); got != tt.want {
				t.Errorf("Dimension() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEmbedDocumentsEmptyInput(t *testing.T) {
	svc, err := NewService(Config{BaseURL: "http://localhost:8080/v1", Model: "BAAI/bge-small-en-v1.5"})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	if _, err := svc.EmbedDocuments(context.Background(), nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("EmbedDocuments(nil) error = %v, want ErrEmptyInput", err)
	}
	if _, err := svc.EmbedQuery(context.Background(), ""); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("EmbedQuery(\"\") error = %v, want ErrEmptyInput", err)
	}
}

func TestEmbedDocuments(t *testing.T) {
	// A minimal OpenAI-compatible embeddings endpoint.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		type datum struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Data []datum `json:"data"`
		}{}
		for i := range req.Input {
			resp.Data = append(resp.Data, datum{Embedding: []float32{0.1, 0.2, 0.3}, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL, Model: "BAAI/bge-small-en-v1.5"})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("EmbedDocuments() error = %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("EmbedDocuments() returned %d vectors, want 2", len(vectors))
	}
	if len(vectors[0]) != 3 {
		t.Errorf("vector length = %d, want 3", len(vectors[0]))
	}
}
