package web

import (
	"strings"
	"time"

	"github.com/banbox/banind/btime"
	"github.com/banbox/banind/config"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// 登录令牌的有效期（小时）
const authExpHours = 168

func regApiPub(api fiber.Router) {
	api.Post("/login", postLogin)
	api.Get("/ping", getPing)
}

func getPing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "pong",
	})
}

func postLogin(c *fiber.Ctx) error {
	type LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	var req = new(LoginRequest)
	if err := VerifyArg(c, req, ArgBody); err != nil {
		return err
	}

	cfg := config.APIServer
	if cfg == nil || cfg.Username == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "api_server users not configured")
	}
	if cfg.Username != req.Username || cfg.Password != req.Password {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid username or password")
	}
	token, err := createAuthToken(req.Username, cfg.JWTSecretKey, authExpHours)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"name":  config.Name,
		"token": token,
	})
}

type AuthClaims struct {
	User string `json:"user"`
	jwt.RegisteredClaims
}

func createAuthToken(user string, secret string, expHours float64) (string, error) {
	now := btime.Now()
	claims := AuthClaims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(*now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expHours*60) * time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Get("X-Authorization")
		if tokenStr == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing token")
		}
		tokenArr := strings.Split(tokenStr, " ")
		if len(tokenArr) != 2 || tokenArr[0] != "Bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		token, err := jwt.Parse(tokenArr[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "invalid token")
			}
			return []byte(secret), nil
		})

		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			c.Locals("user", claims["user"])
		}
		return c.Next()
	}
}
