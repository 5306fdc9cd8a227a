package llm

import (
	"context"
	"errors"
	"testing"
)

func TestNewTextEmbedder_Nil(t *testing.T) {
	if NewTextEmbedder(nil) != nil {
		t.Error("expected nil embedder for nil provider")
	}
}

func TestTextEmbedder_Embed(t *testing.T) {
	e := NewTextEmbedder(&mockProvider{name: "m", vectors: [][][]float32{{{0.5, 0.5}}}})
	v, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 2 || v[0] != 0.5 {
		t.Errorf("vector = %v", v)
	}
}

func TestTextEmbedder_BadShapes(t *testing.T) {
	tests := []struct {
		name string
		vecs [][]float32
	}{
		{"none", [][]float32{}},
		{"two", [][]float32{{1}, {2}}},
		{"empty", [][]float32{{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewTextEmbedder(&mockProvider{name: "m", vectors: [][][]float32{tt.vecs}})
			if _, err := e.Embed(context.Background(), "x"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTextEmbedder_ProviderError(t *testing.T) {
	boom := errors.New("boom")
	e := NewTextEmbedder(&mockProvider{name: "m", errs: []error{boom}})
	if _, err := e.Embed(context.Background(), "x"); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}
