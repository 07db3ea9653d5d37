package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/fabfab/doc-chat/api"
	"github.com/fabfab/doc-chat/chat"
	"github.com/fabfab/doc-chat/chunker"
	"github.com/fabfab/doc-chat/config"
	"github.com/fabfab/doc-chat/database"
	"github.com/fabfab/doc-chat/embeddings"
	"github.com/fabfab/doc-chat/llm"
	"github.com/fabfab/doc-chat/pipeline"
	"github.com/fabfab/doc-chat/storage"
	"github.com/fabfab/doc-chat/store"
	"github.com/fabfab/doc-chat/vectorindex"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("load .env: %v", err)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(logger, os.Args[2:])
	case "clear":
		clearCmd(logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func loadConfig(logger *log.Logger, path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, validationErr := range errs {
			logger.Printf("config: %v", validationErr)
		}
		logger.Fatalf("configuration is invalid")
	}
	return cfg
}

func newIndexStore(cfg config.Config, pool *pgxpool.Pool) vectorindex.Store {
	if cfg.Index.Provider == config.IndexQdrant {
		return vectorindex.NewQdrantStore(vectorindex.QdrantOptions{
			URL:        cfg.Index.QdrantURL,
			APIKey:     cfg.Index.QdrantAPIKey,
			Collection: cfg.Index.QdrantCollection,
			Dimension:  cfg.Embeddings.Dimension,
			Timeout:    cfg.Pipeline.CallTimeout,
		})
	}
	return vectorindex.NewPgvectorStore(pool, cfg.Embeddings.Dimension)
}

func serveCmd(logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := flags.String("config", "", "path to config.yaml")
	addr := flags.String("addr", "", "listen address override")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	cfg := loadConfig(logger, *configPath)
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Fatalf("ensure schema: %v", err)
	}

	blobs, err := storage.NewLocalStore(cfg.Storage.UploadDir)
	if err != nil {
		logger.Fatalf("storage setup: %v", err)
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		logger.Fatalf("llm setup: %v", err)
	}

	splitter, err := chunker.New(cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap)
	if err != nil {
		logger.Fatalf("chunker setup: %v", err)
	}

	index := newIndexStore(cfg, pool)
	docStore := store.NewDocumentStore(pool)
	sessionStore := store.NewSessionStore(pool)

	pipelineSvc := pipeline.NewService(docStore, blobs, embedder, index, splitter, logger, cfg.Pipeline)
	chatSvc := chat.NewService(sessionStore, docStore, index, embedder, llmClient, logger, cfg)
	server := api.New(pipelineSvc, chatSvc, docStore, sessionStore, logger, cfg.Storage.MaxUploadBytes)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s (%s/%s embeddings, %s/%s llm, %s index)",
			cfg.HTTPAddr,
			strings.ToUpper(cfg.Embeddings.Provider), cfg.Embeddings.Model,
			strings.ToUpper(cfg.LLM.Provider), cfg.LLM.Model,
			cfg.Index.Provider)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Println("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}

func clearCmd(logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath := flags.String("config", "", "path to config.yaml")
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		fmt.Print("This will permanently delete all documents, chats, and vectors. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	cfg := loadConfig(logger, *configPath)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, "TRUNCATE chat_messages, chat_sessions, chunks, documents"); err != nil {
		logger.Fatalf("truncate tables: %v", err)
	}
	logger.Println("cleared documents, chunks, and chat history")

	index := newIndexStore(cfg, pool)
	if err := index.Purge(ctx); err != nil {
		logger.Fatalf("purge vector index: %v", err)
	}
	logger.Println("vector index purged")
}

func printUsage() {
	fmt.Println("Usage: doc-chat <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Start the HTTP API")
	fmt.Println("  clear    Remove all documents, chats, and vectors")
}
