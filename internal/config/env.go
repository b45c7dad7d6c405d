package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Secrets are credentials read from the environment, never from YAML.
type Secrets struct {
	HLPrivateKey     string
	HLWalletAddress  string
	HLVaultAddress   string
	AevoAPIKey       string
	AevoAPISecret    string
	AevoSigningKey   string
	AevoWallet       string
	WalletPrivateKey string
}

// LoadSecrets collects venue and wallet credentials. The on-chain wallet key
// falls back to the Hyperliquid key since both venues share one EOA.
func LoadSecrets() (Secrets, error) {
	s := Secrets{
		HLPrivateKey:     env("HL_PRIVATE_KEY"),
		HLWalletAddress:  env("HL_WALLET_ADDRESS"),
		HLVaultAddress:   env("HL_VAULT_ADDRESS"),
		AevoAPIKey:       env("AEVO_API_KEY"),
		AevoAPISecret:    env("AEVO_API_SECRET"),
		AevoSigningKey:   env("AEVO_SIGNING_KEY"),
		AevoWallet:       env("AEVO_WALLET_ADDRESS"),
		WalletPrivateKey: env("WALLET_PRIVATE_KEY"),
	}
	if s.WalletPrivateKey == "" {
		s.WalletPrivateKey = s.HLPrivateKey
	}
	if s.AevoWallet == "" {
		s.AevoWallet = s.HLWalletAddress
	}
	var missing []string
	for name, val := range map[string]string{
		"HL_PRIVATE_KEY":    s.HLPrivateKey,
		"HL_WALLET_ADDRESS": s.HLWalletAddress,
		"AEVO_API_KEY":      s.AevoAPIKey,
		"AEVO_API_SECRET":   s.AevoAPISecret,
		"AEVO_SIGNING_KEY":  s.AevoSigningKey,
	} {
		if val == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return s, fmt.Errorf("%w: %s", ErrMissingSecret, strings.Join(missing, ", "))
	}
	return s, nil
}

var ErrMissingSecret = errors.New("missing required environment variables")

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// LoadEnv reads a .env file and sets environment variables that are not
// already present. A missing file is not an error.
func LoadEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, val, ok := parseEnvLine(scanner.Text())
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return scanner.Err()
}

func parseEnvLine(raw string) (string, string, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")
	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)
	if len(val) >= 2 {
		if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
	}
	if key == "" {
		return "", "", false
	}
	return key, val, true
}
