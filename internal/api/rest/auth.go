package rest

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	contextKeyTenantID  contextKey = "tenant_id"
	contextKeyOperator  contextKey = "operator"
	contextKeyRequestID contextKey = "request_id"
)

// Claims are the JWT claims the API accepts. Subject identifies the operator.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
}

// AuthMiddleware authenticates bearer tokens signed with a shared secret
type AuthMiddleware struct {
	secret []byte
	logger *zap.Logger
}

// NewAuthMiddleware creates an HS256 JWT authenticator
func NewAuthMiddleware(secret string, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret), logger: logger}
}

// Middleware rejects requests without a valid token and stores the tenant
// and operator on the request context.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, msg := bearerToken(r)
		if token == "" {
			writeUnauthorized(w, r, msg)
			return
		}

		claims, err := a.parse(token)
		if err != nil {
			trace.SpanFromContext(r.Context()).RecordError(err)
			a.logger.Debug("rejected token", zap.Error(err))
			writeUnauthorized(w, r, "Invalid or expired token")
			return
		}

		tenantID, err := uuid.Parse(claims.TenantID)
		if err != nil {
			writeUnauthorized(w, r, "Token has no valid tenant")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyTenantID, tenantID)
		ctx = context.WithValue(ctx, contextKeyOperator, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AuthMiddleware) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// IssueToken signs a token for tenantID and operator. Used by tooling and tests.
func IssueToken(secret string, tenantID uuid.UUID, operator string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = operator
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: claims,
		TenantID:         tenantID.String(),
	})
	return token.SignedString([]byte(secret))
}

// bearerToken returns the token, or "" with the reason it is missing
func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		// browsers cannot set headers on websocket upgrades
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, ""
		}
		return "", "Authorization required"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", "Invalid authorization format"
	}
	return token, ""
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="tcpa"`)
	writeErrorResponse(w, r, http.StatusUnauthorized, &ErrorResponse{
		Code:    "UNAUTHORIZED",
		Message: message,
	})
}

func tenantFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(contextKeyTenantID).(uuid.UUID)
	return id, ok
}

func operatorFromContext(ctx context.Context) string {
	op, _ := ctx.Value(contextKeyOperator).(string)
	return op
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}
