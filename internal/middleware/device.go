package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/laundryos/auth-api/internal/models"
	appErrors "github.com/laundryos/auth-api/pkg/errors"
	"github.com/laundryos/auth-api/pkg/response"
)

// Header names carrying client device metadata.
const (
	HeaderDeviceID   = "X-Device-Id"
	HeaderDeviceType = "X-Device-Type"
	HeaderPlatform   = "X-Platform"
	HeaderBrowser    = "X-Browser"
	HeaderCountry    = "X-Country"
	HeaderCity       = "X-City"
	HeaderLatitude   = "X-Latitude"
	HeaderLongitude  = "X-Longitude"
)

// RequireDeviceID rejects requests that do not identify their device.
// Authentication endpoints need the identifier to key device trust and
// session binding.
func RequireDeviceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(HeaderDeviceID) == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "X-Device-Id header is required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// DeviceContext assembles the client device metadata for the current
// request from headers and connection info.
func DeviceContext(c *gin.Context) models.DeviceContext {
	return models.DeviceContext{
		DeviceID:   c.GetHeader(HeaderDeviceID),
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		DeviceType: optionalHeader(c, HeaderDeviceType),
		Platform:   optionalHeader(c, HeaderPlatform),
		Browser:    optionalHeader(c, HeaderBrowser),
		Country:    optionalHeader(c, HeaderCountry),
		City:       optionalHeader(c, HeaderCity),
		Latitude:   optionalHeader(c, HeaderLatitude),
		Longitude:  optionalHeader(c, HeaderLongitude),
	}
}

func optionalHeader(c *gin.Context, name string) *string {
	v := c.GetHeader(name)
	if v == "" {
		return nil
	}
	return &v
}
