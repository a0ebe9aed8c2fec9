package middleware

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"orderflow/internal/models"
)

const ActorKey = "actor"

// AuthGuard verifies the bearer token, resolves the caller into a
// models.Actor and rejects roles outside allowedRoles (any role if empty).
func AuthGuard(secret string, allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if raw == "" && websocket.IsWebSocketUpgrade(c.Request) {
			// browsers cannot set headers on a websocket handshake
			if token := c.Query("token"); token != "" {
				raw = "Bearer " + token
			}
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		parts := strings.Split(raw, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			log.Println("[AUTH] [ERROR] token validation failed:", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		actor, err := actorFromClaims(claims)
		if err != nil {
			log.Println("[AUTH] [ERROR] bad claims:", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if len(allowedRoles) > 0 {
			match := false
			for _, r := range allowedRoles {
				if actor.Role == r {
					match = true
					break
				}
			}
			if !match {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
		}

		c.Set(ActorKey, actor)
		c.Next()
	}
}

func AdminAuth(secret string) gin.HandlerFunc {
	return AuthGuard(secret, models.RoleAdmin)
}

func RestaurantAuth(secret string) gin.HandlerFunc {
	return AuthGuard(secret, models.RoleRestaurant)
}

func CustomerAuth(secret string) gin.HandlerFunc {
	return AuthGuard(secret, models.RoleCustomer)
}

func actorFromClaims(claims jwt.MapClaims) (models.Actor, error) {
	role, _ := claims["role"].(string)
	actor := models.Actor{Role: models.Role(role)}
	actor.Email, _ = claims["email"].(string)

	var err error
	if actor.UserID, err = objectIDClaim(claims, "userId"); err != nil {
		return models.Actor{}, err
	}
	if actor.RestaurantID, err = objectIDClaim(claims, "restaurantId"); err != nil {
		return models.Actor{}, err
	}

	switch actor.Role {
	case models.RoleCustomer, models.RoleAdmin:
		if actor.UserID.IsZero() {
			return models.Actor{}, errors.New("userId claim missing")
		}
	case models.RoleRestaurant:
		if actor.RestaurantID.IsZero() {
			return models.Actor{}, errors.New("restaurantId claim missing")
		}
	default:
		return models.Actor{}, fmt.Errorf("unknown role %q", role)
	}
	return actor, nil
}

// objectIDClaim returns the zero id when the claim is absent.
func objectIDClaim(claims jwt.MapClaims, key string) (primitive.ObjectID, error) {
	value, _ := claims[key].(string)
	if strings.TrimSpace(value) == "" {
		return primitive.NilObjectID, nil
	}
	id, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid %s claim", key)
	}
	return id, nil
}

// ActorFrom returns the actor AuthGuard stored on the request.
func ActorFrom(c *gin.Context) (models.Actor, bool) {
	value, ok := c.Get(ActorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := value.(models.Actor)
	return actor, ok
}
