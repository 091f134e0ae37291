package http_test

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/answer"
	httpserver "github.com/fyrsmithlabs/docrag/internal/http"
	"github.com/fyrsmithlabs/docrag/internal/ingest"
)

type exampleIngester struct{}

func (exampleIngester) Ingest(context.Context, ingest.Upload) (*ingest.Result, error) {
	return &ingest.Result{}, nil
}

type exampleAnswerer struct{}

func (exampleAnswerer) Answer(context.Context, string) (*answer.Result, error) {
	return &answer.Result{Answer: answer.RefusalAnswer}, nil
}

// ExampleNewServer demonstrates how to create and stop the HTTP server.
func ExampleNewServer() {
	logger := zap.NewNop()

	server, err := httpserver.NewServer(httpserver.Deps{
		Ingester: exampleIngester{},
		Answerer: exampleAnswerer{},
	}, logger, &httpserver.Config{Host: "localhost", Port: 8080})
	if err != nil {
		panic(err)
	}

	go func() {
		_ = server.Start()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		fmt.Println("shutdown:", err)
	}
	fmt.Println("server stopped")
	// Output: server stopped
}
