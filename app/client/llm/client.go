package llm

import (
	"chatgate/app/config"
	"fmt"
	"net/http"
	"time"

	"github.com/samber/do"
	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
	openaillm "github.com/tmc/langchaingo/llms/openai"
)

const clientTimeout = 30 * time.Second

// Client bundles the two model endpoints this system calls: a summarizer
// used by context compaction and a chat completion used for replies.
type Client struct {
	cfg *config.Config

	summarizer llms.Model
	reply      *openai.Client
}

func New(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	summarizer, err := openaillm.New(
		openaillm.WithBaseURL(cfg.OpenAI.Summary.BaseURL),
		openaillm.WithToken(cfg.OpenAI.Summary.Token),
		openaillm.WithModel(cfg.OpenAI.Summary.Model),
		openaillm.WithHTTPClient(&http.Client{
			Timeout: clientTimeout,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create summarizer client: %w", err)
	}

	return &Client{
		cfg:        cfg,
		summarizer: summarizer,
		reply:      createClient(cfg.OpenAI.Reply),
	}, nil
}

func createClient(cfg config.ModelConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.Token)

	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: clientTimeout,
	}

	return openai.NewClientWithConfig(clientConfig)
}
