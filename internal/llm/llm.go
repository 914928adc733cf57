// File path: internal/llm/llm.go
package llm

import (
	"os"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v2"

	"github.com/gridline-eng/permitpack/internal/common"
	"github.com/gridline-eng/permitpack/internal/llm/providers"
)

type Message = providers.Message

type Provider = providers.Provider

// NewProvider selects the classification/narrative text provider. OpenAI is
// used when OPENAI_API_KEY is present; otherwise the offline local provider
// keeps the process runnable without credentials.
func NewProvider() Provider {
	logger := common.Logger()
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey != "" {
		opts := []openai.ClientOption{openai.WithAPIKey(apiKey)}
		if timeoutStr := strings.TrimSpace(os.Getenv("OPENAI_HTTP_TIMEOUT")); timeoutStr != "" {
			timeout, err := time.ParseDuration(timeoutStr)
			if err != nil {
				logger.Warn("llm: invalid OPENAI_HTTP_TIMEOUT, using default", "value", timeoutStr, "error", err)
			} else {
				opts = append(opts, openai.WithHTTPTimeout(timeout))
			}
		}
		if endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")); endpoint != "" {
			logger.Info("llm: configuring OpenAI client with custom endpoint", "endpoint", endpoint)
			opts = append(opts, openai.WithBaseURL(endpoint))
		}
		client := openai.NewClient(opts...)
		logger.Info("llm: OpenAI provider selected")
		return providers.NewOpenAIProvider(client)
	}
	logger.Warn("llm: OPENAI_API_KEY not set; falling back to local provider")
	return providers.NewLocalProvider()
}
