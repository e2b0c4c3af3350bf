package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validConfig = `
telegram:
  token: "123456:TEST-TOKEN"
  run_mode: longpoll
logging:
  level: info
referral:
  code_length: 8
  link_base: "https://t.me/testbot?start="
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	require.Equal(t, "123456:TEST-TOKEN", cfg.Telegram.Token)
	require.Equal(t, "data/database.db", cfg.Database.Path)
	require.Equal(t, 4, cfg.Funnel.IntroAudioDelaySeconds)
	require.Equal(t, 2, cfg.Funnel.MaterialsPromptDelaySeconds)
	require.Equal(t, 8, cfg.Referral.CodeLength)
	require.Equal(t, "https://t.me/testbot?start=", cfg.Referral.LinkBase)
}

func TestLoadRejectsPlaceholderToken(t *testing.T) {
	_, err := Load(writeConfig(t, `
telegram:
  token: "your_bot_token_here"
referral:
  link_base: "https://t.me/testbot?start="
`))
	require.Error(t, err)
}

func TestLoadRequiresLinkBase(t *testing.T) {
	_, err := Load(writeConfig(t, `
telegram:
  token: "123456:TEST-TOKEN"
referral:
  code_length: 6
`))
	require.Error(t, err)
}

func TestLoadCodeLengthBounds(t *testing.T) {
	// Unset length falls back to the default instead of failing.
	cfg, err := Load(writeConfig(t, `
telegram:
  token: "123456:TEST-TOKEN"
referral:
  link_base: "https://t.me/testbot?start="
`))
	require.NoError(t, err)
	require.Equal(t, 6, cfg.Referral.CodeLength)

	for _, length := range []int{-1, 64} {
		_, err := Load(writeConfig(t, fmt.Sprintf(`
telegram:
  token: "123456:TEST-TOKEN"
referral:
  code_length: %d
  link_base: "https://t.me/testbot?start="
`, length)))
		require.Error(t, err, "code_length %d must be rejected", length)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FUNNEL_INTRO_AUDIO_DELAY_SECONDS", "7")
	t.Setenv("REFERRAL_CODE_LENGTH", "10")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Funnel.IntroAudioDelaySeconds)
	require.Equal(t, 10, cfg.Referral.CodeLength)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}

func TestCoreConfigAccessor(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	require.NotNil(t, cfg.CoreConfig())
	require.Equal(t, cfg.Telegram.Token, cfg.CoreConfig().Telegram.Token)

	var nilCfg *Config
	require.Nil(t, nilCfg.CoreConfig())
}
