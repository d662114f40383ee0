package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("CLODURA_TOKEN", "tok-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "ai-sdr", cfg.Mongo.Database)
	assert.Equal(t, "sk-or-test", cfg.OpenRouter.APIKey)
	assert.Equal(t, "tok-test", cfg.CRM.Token)
	assert.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("CLODURA_TOKEN", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  request_timeout: 30s
mongo:
  uri: mongodb://db:27017
  database: sales
openrouter:
  api_key: sk-from-file
  default_model: openai/gpt-4o-mini
  agent_models: [openai/gpt-4o, openai/gpt-4o-mini]
crm:
  token: tok-from-file
  user_id: u-42
redis:
  addr: redis:6379
compression:
  max_total_tokens: 20000
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
	assert.Equal(t, "sales", cfg.Mongo.Database)
	assert.Equal(t, "sk-from-file", cfg.OpenRouter.APIKey)
	assert.Equal(t, []string{"openai/gpt-4o", "openai/gpt-4o-mini"}, cfg.OpenRouter.AgentModels)
	assert.Equal(t, "u-42", cfg.CRM.UserID)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 20000, cfg.Compression.MaxTotalTokens)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-from-env")
	t.Setenv("CLODURA_TOKEN", "tok")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openrouter:\n  api_key: sk-from-file\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.OpenRouter.APIKey)
}

func TestValidateRejectsMissingSecrets(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("CLODURA_TOKEN", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENROUTER_API_KEY")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}
