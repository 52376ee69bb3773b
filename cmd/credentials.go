package cmd

import (
	"os"
	"strings"

	"github.com/user/crosscheck/pkg/adapter"
	"github.com/user/crosscheck/pkg/config"
)

// envKeys names the environment variable consulted for a credential when the
// config file has none.
var envKeys = map[string]string{
	"gemini":    "GOOGLE_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"sonarqube": "SONAR_TOKEN",
}

func envKey(name string) string {
	if k, ok := envKeys[name]; ok {
		return k
	}
	return "CROSSCHECK_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name)) + "_KEY"
}

// credentials layers the environment under the config file.
func credentials(cfg *config.Config) adapter.CredentialProvider {
	return adapter.Chain{
		config.Credentials(cfg),
		adapter.CredentialFunc(func(name string) (string, bool) {
			v := os.Getenv(envKey(name))
			return v, v != ""
		}),
	}
}
