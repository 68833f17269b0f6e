package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	pdfrag "github.com/w-h-a/pdfrag"
	"github.com/w-h-a/pdfrag/chunker"
	"github.com/w-h-a/pdfrag/embedder"
	googleembedder "github.com/w-h-a/pdfrag/embedder/google"
	openaiembedder "github.com/w-h-a/pdfrag/embedder/openai"
	"github.com/w-h-a/pdfrag/extractor/pdf"
	"github.com/w-h-a/pdfrag/generator"
	anthropicgenerator "github.com/w-h-a/pdfrag/generator/anthropic"
	googlegenerator "github.com/w-h-a/pdfrag/generator/google"
	openaigenerator "github.com/w-h-a/pdfrag/generator/openai"
	"github.com/w-h-a/pdfrag/index"
	"github.com/w-h-a/pdfrag/index/flat"
	"github.com/w-h-a/pdfrag/index/postgres"
	"github.com/w-h-a/pdfrag/index/qdrant"
	"github.com/w-h-a/pdfrag/pipeline"
	"github.com/w-h-a/pdfrag/server"
	httpserver "github.com/w-h-a/pdfrag/server/http"
)

var (
	cfg struct {
		// Server config
		Address string `help:"Address for the http server to listen on" default:":8001"`

		// Chunker config
		ChunkSize    int `help:"Number of characters per chunk" default:"1000"`
		ChunkOverlap int `help:"Number of characters shared between adjacent chunks" default:"200"`

		// Embedder config
		Embedder      string `help:"Embedding provider (openai or google)" enum:"openai,google" default:"openai"`
		EmbedderKey   string `help:"API Key for the embedder" env:"EMBEDDER_API_KEY" default:""`
		EmbedderModel string `help:"Model identifier for the embedder" default:"text-embedding-3-large"`
		Dimension     int    `help:"Embedding dimension" default:"3072"`

		// Index config
		Index         string `help:"Index backend (flat, postgres, or qdrant)" enum:"flat,postgres,qdrant" default:"flat"`
		IndexLocation string `help:"Snapshot path, postgres DSN, or qdrant address, per backend" default:"pdfrag.index.json"`
		Collection    string `help:"Collection or table name for the index (backend default when empty)" default:""`
		IndexKey      string `help:"API Key for the index backend" env:"INDEX_API_KEY" default:""`

		// Generator config
		Generator      string `help:"Generation provider (openai, anthropic, or google)" enum:"openai,anthropic,google" default:"openai"`
		GeneratorKey   string `help:"API Key for the generator" env:"GENERATOR_API_KEY" default:""`
		GeneratorModel string `help:"Model identifier for the generator" default:"gpt-4o-mini"`
	}
)

func init() {
	// Load .env file if exists
	_ = godotenv.Load()
}

func main() {
	_ = kong.Parse(&cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create chunker
	c := chunker.New(
		chunker.WithChunkSize(cfg.ChunkSize),
		chunker.WithChunkOverlap(cfg.ChunkOverlap),
	)

	// Create embedder
	var e embedder.Embedder

	switch cfg.Embedder {
	case "google":
		e = googleembedder.NewEmbedder(
			embedder.WithApiKey(cfg.EmbedderKey),
			embedder.WithModel(cfg.EmbedderModel),
			embedder.WithDimension(cfg.Dimension),
		)
	default:
		e = openaiembedder.NewEmbedder(
			embedder.WithApiKey(cfg.EmbedderKey),
			embedder.WithModel(cfg.EmbedderModel),
			embedder.WithDimension(cfg.Dimension),
		)
	}

	// Create index
	var idx index.Index

	switch cfg.Index {
	case "postgres":
		idx = postgres.NewIndex(
			index.WithLocation(cfg.IndexLocation),
			index.WithCollection(cfg.Collection),
			index.WithDimension(cfg.Dimension),
		)
	case "qdrant":
		idx = qdrant.NewIndex(
			index.WithLocation(cfg.IndexLocation),
			index.WithCollection(cfg.Collection),
			index.WithApiKey(cfg.IndexKey),
			index.WithDimension(cfg.Dimension),
		)
	default:
		idx = flat.NewIndex(
			index.WithLocation(cfg.IndexLocation),
		)
	}

	// Create generator
	var g generator.Generator

	switch cfg.Generator {
	case "anthropic":
		g = anthropicgenerator.NewGenerator(
			generator.WithApiKey(cfg.GeneratorKey),
			generator.WithModel(cfg.GeneratorModel),
		)
	case "google":
		g = googlegenerator.NewGenerator(
			generator.WithApiKey(cfg.GeneratorKey),
			generator.WithModel(cfg.GeneratorModel),
		)
	default:
		g = openaigenerator.NewGenerator(
			generator.WithApiKey(cfg.GeneratorKey),
			generator.WithModel(cfg.GeneratorModel),
		)
	}

	// Wire the pipeline and load any previous snapshot
	p := pipeline.New(c, e, idx)

	rag := pdfrag.New(pdf.NewExtractor(), p, g)

	if err := rag.Load(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to load index", "error", err)
		os.Exit(1)
	}

	// Serve
	srv := httpserver.NewServer(rag, server.WithAddress(cfg.Address))

	if err := srv.Run(ctx); err != nil {
		slog.ErrorContext(ctx, "server exited", "error", err)
		os.Exit(1)
	}
}
