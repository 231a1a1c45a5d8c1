// auth.go — JWT middleware для аутентификации загрузок.
// RS256 + JWKS. Идентификатор пользователя берётся из настраиваемого claim
// (по умолчанию userId), при его отсутствии из sub.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/opendist/internal/api/errors"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyUserID — ключ идентификатора пользователя в контексте запроса.
const ContextKeyUserID contextKey = "jwt_user_id"

// JWTAuth — middleware для JWT-аутентификации через JWKS.
type JWTAuth struct {
	jwks      keyfunc.Keyfunc
	userClaim string
	parseOpts []jwt.ParserOption
	logger    *slog.Logger
}

// JWTAuthConfig — параметры для создания JWT middleware.
type JWTAuthConfig struct {
	// URL JWKS endpoint
	JWKSURL string
	// Ожидаемый iss (пусто — не проверять)
	Issuer string
	// Claim с идентификатором пользователя
	UserClaim string
	// Таймаут HTTP-клиента JWKS
	ClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	RefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
}

// NewJWTAuth создаёт JWT middleware с JWKS из указанного URL.
func NewJWTAuth(authCfg JWTAuthConfig, logger *slog.Logger) (*JWTAuth, error) {
	// NoErrorReturnFirstHTTPReq позволяет стартовать, даже если JWKS endpoint
	// ещё недоступен
	storage, err := jwkset.NewStorageFromHTTP(authCfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: authCfg.ClientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           authCfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", authCfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTAuthWithKeyfunc(k, authCfg, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, authCfg JWTAuthConfig, logger *slog.Logger) *JWTAuth {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(authCfg.JWTLeeway),
	}
	if authCfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(authCfg.Issuer))
	}

	userClaim := authCfg.UserClaim
	if userClaim == "" {
		userClaim = "sub"
	}

	return &JWTAuth{
		jwks:      kf,
		userClaim: userClaim,
		parseOpts: opts,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware извлекает Bearer token, проверяет подпись и exp,
// помещает идентификатор пользователя в контекст запроса.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, j.jwks.KeyfuncCtx(r.Context()), j.parseOpts...)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT валидация не пройдена",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			userID := j.userID(claims)
			if userID == "" {
				apierrors.Unauthorized(w, "В токене нет идентификатора пользователя")
				return
			}

			annotateUser(r.Context(), userID)
			ctx := context.WithValue(r.Context(), ContextKeyUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userID читает настроенный claim (строка или число), иначе sub.
func (j *JWTAuth) userID(claims jwt.MapClaims) string {
	switch v := claims[j.userClaim].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	sub, _ := claims.GetSubject()
	return sub
}

// UserIDFromContext извлекает идентификатор пользователя из контекста.
// Пустая строка, если аутентификация отключена.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyUserID).(string)
	return id
}
