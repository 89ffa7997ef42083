package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chungtau/ledger-bank/internal/domain"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func do(r http.Handler, method, path, token string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.Use(Auth(secret))
	r.GET("/me", func(c *gin.Context) {
		id, ok := GetIdentity(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "role": id.Role})
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"string subject", "Bearer " + sign(t, jwt.MapClaims{"sub": "2", "role": "CUSTOMER"}), http.StatusOK},
		{"numeric subject", "Bearer " + sign(t, jwt.MapClaims{"sub": 1, "role": "admin"}), http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, jwt.MapClaims{"sub": "2", "role": "CUSTOMER", "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
		{"non numeric subject", "Bearer " + sign(t, jwt.MapClaims{"sub": "alice", "role": "CUSTOMER"}), http.StatusUnauthorized},
		{"unknown role", "Bearer " + sign(t, jwt.MapClaims{"sub": "2", "role": "ROOT"}), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestAuth_WrongSecret(t *testing.T) {
	t.Parallel()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "2", "role": "CUSTOMER", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other"))
	require.NoError(t, err)

	r := gin.New()
	r.Use(Auth(secret))
	r.GET("/me", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", token, nil).Code)
}

func TestLogging_PropagatesRequestID(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.Use(Logging(zap.NewNop()))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := do(r, http.MethodGet, "/", "", map[string]string{RequestIDHeader: "req-1"})
	assert.Equal(t, "req-1", w.Body.String())
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))

	w = do(r, http.MethodGet, "/", "", nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.Use(Recovery())
	r.GET("/", func(c *gin.Context) { panic("boom") })

	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodGet, "/", "", nil).Code)
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.Use(Auth(secret))
	r.Use(NewRateLimiter(newRedis(t), 1, 2).Middleware())
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	alice := sign(t, jwt.MapClaims{"sub": "2", "role": "CUSTOMER"})
	bob := sign(t, jwt.MapClaims{"sub": "3", "role": "CUSTOMER"})

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/", alice, nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/", alice, nil).Code)
	w := do(r, http.MethodPost, "/", alice, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/", bob, nil).Code)
}

func TestIdempotency(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	status := http.StatusCreated

	r := gin.New()
	r.Use(Auth(secret))
	r.POST("/transfer", NewIdempotency(newRedis(t), time.Hour).Middleware(), func(c *gin.Context) {
		n := calls.Add(1)
		c.JSON(status, gin.H{"call": n})
	})

	token := sign(t, jwt.MapClaims{"sub": "2", "role": "CUSTOMER"})
	key := uuid.NewString()
	headers := map[string]string{IdempotencyHeader: key}

	first := do(r, http.MethodPost, "/transfer", token, headers)
	require.Equal(t, http.StatusCreated, first.Code)

	second := do(r, http.MethodPost, "/transfer", token, headers)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(IdempotencyHitHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), calls.Load())

	t.Run("scoped per caller", func(t *testing.T) {
		other := sign(t, jwt.MapClaims{"sub": "3", "role": "CUSTOMER"})
		w := do(r, http.MethodPost, "/transfer", other, headers)
		assert.Empty(t, w.Header().Get(IdempotencyHitHeader))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("no key passes through", func(t *testing.T) {
		do(r, http.MethodPost, "/transfer", token, nil)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("non uuid key rejected", func(t *testing.T) {
		w := do(r, http.MethodPost, "/transfer", token, map[string]string{IdempotencyHeader: "abc"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, int32(3), calls.Load())
	})
}

func TestIdempotency_ServerErrorsAreRetryable(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	r := gin.New()
	r.POST("/", NewIdempotency(newRedis(t), time.Hour).Middleware(), func(c *gin.Context) {
		if calls.Add(1) == 1 {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	headers := map[string]string{IdempotencyHeader: uuid.NewString()}
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodPost, "/", "", headers).Code)
	w := do(r, http.MethodPost, "/", "", headers)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(IdempotencyHitHeader))
	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotency_InFlightConflict(t *testing.T) {
	t.Parallel()

	client := newRedis(t)
	key := uuid.NewString()
	require.NoError(t, client.Set(t.Context(), "idempotency:anonymous:"+key, `{"state":"in_flight"}`, time.Minute).Err())

	r := gin.New()
	r.POST("/", NewIdempotency(client, time.Hour).Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := do(r, http.MethodPost, "/", "", map[string]string{IdempotencyHeader: key})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetIdentity_Missing(t *testing.T) {
	t.Parallel()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	id, ok := GetIdentity(c)
	assert.False(t, ok)
	assert.Equal(t, domain.Identity{}, id)
	assert.Nil(t, GetClaims(c))
}
