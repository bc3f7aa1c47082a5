package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port            string
	Environment     string
	DatabasePath    string
	JWTSecret       string
	CORSOrigins     string
	MaxUploadSize   int64
	FileStoragePath string
	ModerationRules string
	XPPerMessage    int
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
}

func Load() *Config {
	fromFile := readEnvFile(os.Getenv("SOHBET_ENV_FILE"))
	return &Config{
		Port:            getEnv(fromFile, "PORT", "8080"),
		Environment:     getEnv(fromFile, "ENVIRONMENT", "development"),
		DatabasePath:    getEnv(fromFile, "DATABASE_PATH", "./data/sohbet.db"),
		JWTSecret:       getEnv(fromFile, "JWT_SECRET", "your-secret-key-change-in-production"),
		CORSOrigins:     getEnv(fromFile, "CORS_ORIGINS", "*"),
		MaxUploadSize:   parseInt64(getEnv(fromFile, "MAX_UPLOAD_SIZE", "10485760")), // 10MB default
		FileStoragePath: getEnv(fromFile, "FILE_STORAGE_PATH", "./data/uploads"),
		ModerationRules: getEnv(fromFile, "MODERATION_RULES_PATH", ""),
		XPPerMessage:    parseInt(getEnv(fromFile, "XP_PER_MESSAGE", "5"), 5),
		VAPIDPublicKey:  getEnv(fromFile, "VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv(fromFile, "VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:    getEnv(fromFile, "VAPID_SUBJECT", "mailto:admin@localhost"),
	}
}

// getEnv resolves key from the process environment first, then the env
// file, then the default. Real environment variables always win.
func getEnv(fromFile map[string]string, key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if value, exists := fromFile[key]; exists {
		return value
	}
	return defaultValue
}

func readEnvFile(path string) map[string]string {
	vars := map[string]string{}
	if path == "" {
		return vars
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return vars
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return vars
}

func parseInt64(s string) int64 {
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 10485760 // 10MB default
	}
	return val
}

func parseInt(s string, defaultValue int) int {
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}
