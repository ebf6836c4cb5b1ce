// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/api/schemas"
	"github.com/xkilldash9x/specter-cli/internal/config"
)

// New constructs the model client for the configured provider. The provider
// set is closed; adding one means adding a case here and a config constant.
func New(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (schemas.ModelClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
