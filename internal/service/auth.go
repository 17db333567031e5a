package service

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

// OperatorOTPHeader carries the one-time code on operator requests.
const OperatorOTPHeader = "X-Operator-OTP"

// OperatorAuth guards operator endpoints with a TOTP code.
type OperatorAuth struct {
	logger     *zap.Logger
	totpSecret string
}

func NewOperatorAuth(logger *zap.Logger, totpSecret string) *OperatorAuth {
	return &OperatorAuth{
		logger:     logger,
		totpSecret: totpSecret,
	}
}

// GenerateSecret creates a new TOTP secret and its provisioning URL.
func GenerateSecret(accountName string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "PostShare Operator",
		AccountName: accountName,
	})
	if err != nil {
		return "", "", errors.Wrap(err, "failed to generate TOTP key")
	}

	return key.Secret(), key.URL(), nil
}

func (a *OperatorAuth) Enabled() bool {
	return a.totpSecret != ""
}

func (a *OperatorAuth) ValidateToken(token string) bool {
	if !a.Enabled() || token == "" {
		return false
	}
	valid := totp.Validate(token, a.totpSecret)
	if !valid {
		a.logger.Warn("Operator TOTP validation failed")
	}
	return valid
}

// Middleware rejects requests without a valid code. Without a configured
// secret the operator endpoints are closed.
func (a *OperatorAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Operator access is disabled"})
			c.Abort()
			return
		}

		if !a.ValidateToken(c.GetHeader(OperatorOTPHeader)) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		c.Next()
	}
}
