package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"orderflow/internal/models"
)

const secret = "unit-test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func guarded(guard gin.HandlerFunc) (*gin.Engine, *models.Actor) {
	gin.SetMode(gin.TestMode)
	seen := &models.Actor{}
	r := gin.New()
	r.GET("/", guard, func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		*seen = actor
		c.Status(http.StatusNoContent)
	})
	return r, seen
}

func call(r *gin.Engine, header string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Code
}

func TestAuthGuardResolvesActor(t *testing.T) {
	r, seen := guarded(AuthGuard(secret))
	restaurantID := primitive.NewObjectID()
	userID := primitive.NewObjectID()

	token := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"role":         "restaurant",
		"userId":       userID.Hex(),
		"restaurantId": restaurantID.Hex(),
		"email":        "owner@example.com",
		"exp":          time.Now().Add(time.Hour).Unix(),
	})

	if code := call(r, "Bearer "+token); code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", code)
	}
	if seen.Role != models.RoleRestaurant || seen.RestaurantID != restaurantID || seen.UserID != userID {
		t.Fatalf("unexpected actor %+v", *seen)
	}
	if seen.Email != "owner@example.com" {
		t.Fatalf("expected email claim, got %q", seen.Email)
	}
}

func TestAuthGuardRejectsBadTokens(t *testing.T) {
	r, _ := guarded(AuthGuard(secret))
	customer := jwt.MapClaims{"role": "customer", "userId": primitive.NewObjectID().Hex()}

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), customer)},
		{"alg none", "Bearer " + sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, customer)},
		{"expired", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
			"role": "customer", "userId": primitive.NewObjectID().Hex(), "exp": time.Now().Add(-time.Minute).Unix(),
		})},
		{"unknown role", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
			"role": "courier", "userId": primitive.NewObjectID().Hex(),
		})},
		{"customer without user id", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
			"role": "customer",
		})},
		{"restaurant without restaurant id", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
			"role": "restaurant", "userId": primitive.NewObjectID().Hex(),
		})},
		{"malformed id", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
			"role": "customer", "userId": "12345",
		})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code := call(r, tc.header); code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", code)
			}
		})
	}
}

func TestRoleGuards(t *testing.T) {
	customer := "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"role": "customer", "userId": primitive.NewObjectID().Hex(),
	})
	admin := "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"role": "admin", "userId": primitive.NewObjectID().Hex(),
	})

	adminOnly, _ := guarded(AdminAuth(secret))
	if code := call(adminOnly, customer); code != http.StatusForbidden {
		t.Fatalf("customer on admin route: expected 403, got %d", code)
	}
	if code := call(adminOnly, admin); code != http.StatusNoContent {
		t.Fatalf("admin on admin route: expected 204, got %d", code)
	}

	restaurantOnly, _ := guarded(RestaurantAuth(secret))
	if code := call(restaurantOnly, admin); code != http.StatusForbidden {
		t.Fatalf("admin on restaurant route: expected 403, got %d", code)
	}

	customerOnly, _ := guarded(CustomerAuth(secret))
	if code := call(customerOnly, customer); code != http.StatusNoContent {
		t.Fatalf("customer on customer route: expected 204, got %d", code)
	}
}

func TestQueryTokenOnlyOnWebsocketUpgrade(t *testing.T) {
	r, _ := guarded(AuthGuard(secret))
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"role": "customer", "userId": primitive.NewObjectID().Hex(),
	})

	plain := httptest.NewRequest(http.MethodGet, "/?token="+token, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, plain)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("plain request with query token: expected 401, got %d", rec.Code)
	}

	upgrade := httptest.NewRequest(http.MethodGet, "/?token="+token, nil)
	upgrade.Header.Set("Connection", "Upgrade")
	upgrade.Header.Set("Upgrade", "websocket")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, upgrade)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("upgrade request with query token: expected 204, got %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Body.String() != "abc-123" || rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("caller id not kept: body %q header %q", rec.Body.String(), rec.Header().Get(RequestIDHeader))
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := rec.Header().Get(RequestIDHeader)
	if generated == "" || generated != rec.Body.String() {
		t.Fatalf("expected a generated id, got header %q body %q", generated, rec.Body.String())
	}
}
