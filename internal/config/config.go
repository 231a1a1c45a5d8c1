// Пакет config — загрузка и валидация конфигурации open-dist
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды хранилища метаданных артефактов.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMySQL    = "mysql"
	StoreMemory   = "memory"
)

// Бэкенды хранилища бинарных файлов.
const (
	BlobLocal = "local"
	BlobS3    = "s3"
)

// Config содержит все параметры конфигурации open-dist.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Публичный базовый URL сервиса (без завершающего слэша).
	// Используется для ссылок установки и OTA-манифеста.
	PublicBaseURL string

	// --- Хранилище файлов ---

	// Бэкенд файлов: local или s3
	BlobBackend string
	// Корневая директория загрузок (local)
	UploadRoot string
	// Параметры S3 (s3)
	S3Endpoint       string
	S3Region         string
	S3Bucket         string
	S3AccessKey      string
	S3SecretKey      string
	S3Prefix         string
	S3ForcePathStyle bool
	// Таймаут запроса к S3 целиком, включая тело (0 — без таймаута)
	S3ClientTimeout time.Duration

	// --- Хранилище метаданных ---

	// Бэкенд метаданных: postgres, sqlite, mysql, memory
	StoreBackend string
	// Параметры PostgreSQL
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	// Путь к файлу SQLite
	SQLitePath string
	// DSN MySQL
	MySQLDSN string
	// Проекты для memory-бэкенда: "id=name;id2=name2"
	SeedProjects map[string]string

	// --- Лимиты запросов ---

	// Максимальный размер тела запроса загрузки артефакта (по умолчанию 300 MiB)
	ArtifactMaxBodySize int64
	// Максимальный размер тела остальных запросов (по умолчанию 2 MiB)
	MaxBodySize int64
	// Таймаут обработки запроса (по умолчанию 30s)
	RequestTimeout time.Duration
	// Лимит загрузок в минуту с одного IP (0 — без ограничения)
	UploadRateLimit int
	// Разрешённые CORS origins
	CORSAllowedOrigins []string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// --- JWT ---

	// URL JWKS endpoint (пусто — аутентификация отключена)
	JWKSURL string
	// Ожидаемый issuer (пусто — не проверяется)
	JWTIssuer string
	// Claim с идентификатором пользователя
	JWTUserClaim        string
	JWTLeeway           time.Duration
	JWKSRefreshInterval time.Duration
	JWKSClientTimeout   time.Duration

	// --- Кэш проектов ---

	ProjectCacheSize int
	ProjectCacheTTL  time.Duration

	// --- Интеграции ---

	// URL NATS (пусто — события не публикуются)
	NATSURL     string
	NATSSubject string
	// OTLP endpoint для трейсов (пусто — трейсинг отключён)
	OTelEndpoint string

	// --- dephealth ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
	DephealthIsEntry       bool
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("OD_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("OD_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("OD_PORT: порт %d вне диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("OD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("OD_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("OD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("OD_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	publicURL, err := getEnvRequired("OD_PUBLIC_BASE_URL")
	if err != nil {
		return nil, err
	}
	cfg.PublicBaseURL, err = normalizeBaseURL(publicURL)
	if err != nil {
		return nil, fmt.Errorf("OD_PUBLIC_BASE_URL: %w", err)
	}

	// --- Хранилище файлов ---

	cfg.BlobBackend = strings.ToLower(getEnvDefault("OD_BLOB_BACKEND", BlobLocal))
	switch cfg.BlobBackend {
	case BlobLocal:
		cfg.UploadRoot, err = getEnvRequired("OD_UPLOAD_ROOT")
		if err != nil {
			return nil, err
		}
	case BlobS3:
		if cfg.S3Endpoint, err = getEnvRequired("OD_S3_ENDPOINT"); err != nil {
			return nil, err
		}
		if cfg.S3Bucket, err = getEnvRequired("OD_S3_BUCKET"); err != nil {
			return nil, err
		}
		if cfg.S3AccessKey, err = getEnvRequired("OD_S3_ACCESS_KEY"); err != nil {
			return nil, err
		}
		if cfg.S3SecretKey, err = getEnvRequired("OD_S3_SECRET_KEY"); err != nil {
			return nil, err
		}
		cfg.S3Region = getEnvDefault("OD_S3_REGION", "us-east-1")
		cfg.S3Prefix = strings.Trim(getEnvDefault("OD_S3_PREFIX", "artifacts"), "/")
		cfg.S3ForcePathStyle, err = getEnvBool("OD_S3_FORCE_PATH_STYLE", true)
		if err != nil {
			return nil, fmt.Errorf("OD_S3_FORCE_PATH_STYLE: %w", err)
		}
		cfg.S3ClientTimeout, err = getEnvDuration("OD_S3_CLIENT_TIMEOUT", 0)
		if err != nil {
			return nil, fmt.Errorf("OD_S3_CLIENT_TIMEOUT: %w", err)
		}
	default:
		return nil, fmt.Errorf("OD_BLOB_BACKEND: недопустимое значение %q, допустимые: local, s3", cfg.BlobBackend)
	}

	// --- Хранилище метаданных ---

	cfg.StoreBackend = strings.ToLower(getEnvDefault("OD_STORE_BACKEND", StorePostgres))
	switch cfg.StoreBackend {
	case StorePostgres:
		cfg.DBHost = getEnvDefault("OD_DB_HOST", "localhost")
		cfg.DBPort, err = getEnvInt("OD_DB_PORT", 5432)
		if err != nil {
			return nil, fmt.Errorf("OD_DB_PORT: %w", err)
		}
		cfg.DBName = getEnvDefault("OD_DB_NAME", "opendist")
		cfg.DBUser = getEnvDefault("OD_DB_USER", "opendist")
		cfg.DBPassword, err = getEnvRequired("OD_DB_PASSWORD")
		if err != nil {
			return nil, err
		}
		cfg.DBSSLMode = getEnvDefault("OD_DB_SSL_MODE", "disable")
	case StoreSQLite:
		cfg.SQLitePath = getEnvDefault("OD_SQLITE_PATH", "data/open-dist.db")
	case StoreMySQL:
		cfg.MySQLDSN, err = getEnvRequired("OD_MYSQL_DSN")
		if err != nil {
			return nil, err
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("OD_STORE_BACKEND: недопустимое значение %q, допустимые: postgres, sqlite, mysql, memory", cfg.StoreBackend)
	}

	cfg.SeedProjects, err = parseProjects(os.Getenv("OD_PROJECTS"))
	if err != nil {
		return nil, fmt.Errorf("OD_PROJECTS: %w", err)
	}

	// --- Лимиты запросов ---

	cfg.ArtifactMaxBodySize, err = getEnvInt64("OD_ARTIFACT_MAX_BODY_SIZE", 300<<20)
	if err != nil {
		return nil, fmt.Errorf("OD_ARTIFACT_MAX_BODY_SIZE: %w", err)
	}
	if cfg.ArtifactMaxBodySize <= 0 {
		return nil, fmt.Errorf("OD_ARTIFACT_MAX_BODY_SIZE: значение должно быть положительным, получено %d", cfg.ArtifactMaxBodySize)
	}

	cfg.MaxBodySize, err = getEnvInt64("OD_MAX_BODY_SIZE", 2<<20)
	if err != nil {
		return nil, fmt.Errorf("OD_MAX_BODY_SIZE: %w", err)
	}
	if cfg.MaxBodySize <= 0 {
		return nil, fmt.Errorf("OD_MAX_BODY_SIZE: значение должно быть положительным, получено %d", cfg.MaxBodySize)
	}

	cfg.RequestTimeout, err = getEnvDuration("OD_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OD_REQUEST_TIMEOUT: %w", err)
	}

	cfg.UploadRateLimit, err = getEnvInt("OD_UPLOAD_RATE_LIMIT", 30)
	if err != nil {
		return nil, fmt.Errorf("OD_UPLOAD_RATE_LIMIT: %w", err)
	}
	if cfg.UploadRateLimit < 0 {
		return nil, fmt.Errorf("OD_UPLOAD_RATE_LIMIT: значение не может быть отрицательным")
	}

	cfg.CORSAllowedOrigins = splitList(getEnvDefault("OD_CORS_ALLOWED_ORIGINS", "*"))

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("OD_HTTP_READ_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OD_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("OD_HTTP_WRITE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("OD_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("OD_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OD_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("OD_SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OD_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- JWT ---

	cfg.JWKSURL = os.Getenv("OD_JWKS_URL")
	cfg.JWTIssuer = os.Getenv("OD_JWT_ISSUER")
	cfg.JWTUserClaim = getEnvDefault("OD_JWT_USER_CLAIM", "userId")
	cfg.JWTLeeway, err = getEnvDuration("OD_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OD_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("OD_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("OD_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDuration("OD_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OD_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// --- Кэш проектов ---

	cfg.ProjectCacheSize, err = getEnvInt("OD_PROJECT_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("OD_PROJECT_CACHE_SIZE: %w", err)
	}
	if cfg.ProjectCacheSize <= 0 {
		return nil, fmt.Errorf("OD_PROJECT_CACHE_SIZE: значение должно быть положительным, получено %d", cfg.ProjectCacheSize)
	}
	cfg.ProjectCacheTTL, err = getEnvDuration("OD_PROJECT_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("OD_PROJECT_CACHE_TTL: %w", err)
	}

	// --- Интеграции ---

	cfg.NATSURL = os.Getenv("OD_NATS_URL")
	cfg.NATSSubject = getEnvDefault("OD_NATS_SUBJECT", "artifacts.created")
	cfg.OTelEndpoint = os.Getenv("OD_OTEL_ENDPOINT")

	// --- dephealth ---

	cfg.DephealthGroup = getEnvDefault("OD_DEPHEALTH_GROUP", "open-dist")
	cfg.DephealthCheckInterval, err = getEnvDuration("OD_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OD_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthIsEntry, err = getEnvBool("DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("DEPHEALTH_ISENTRY: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN формирует DSN для подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	if d < 0 {
		return 0, fmt.Errorf("длительность не может быть отрицательной: %q", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// normalizeBaseURL проверяет, что URL абсолютный (http/https), и убирает завершающий слэш.
func normalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("некорректный URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("ожидается схема http или https, получено %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("в URL %q отсутствует хост", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// parseProjects разбирает список проектов формата "id=name;id2=name2".
func parseProjects(raw string) (map[string]string, error) {
	projects := make(map[string]string)
	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, name, ok := strings.Cut(item, "=")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if !ok || id == "" || name == "" {
			return nil, fmt.Errorf("некорректный элемент %q, ожидается id=name", item)
		}
		projects[id] = name
	}
	return projects, nil
}

// splitList разбивает строку через запятую, отбрасывая пустые элементы.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
