package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Laundry OS Auth API",
        "description": "Authentication, device trust, and session management",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Bearer access token"
        }
    },
    "tags": [
        {"name": "Authentication", "description": "Login, token rotation, logout"},
        {"name": "Sessions", "description": "Per-device session visibility and revocation"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate by phone and PIN",
                "parameters": [
                    {"name": "X-Device-Id", "in": "header", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Tokens, or a one-time-code challenge for an unrecognized device", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"},
                    "403": {"description": "Account deactivated or unverified"}
                }
            }
        },
        "/auth/verify-otp": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Finalize a pending login with the one-time code",
                "parameters": [
                    {"name": "X-Device-Id", "in": "header", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VerifyOTPRequest"}}
                ],
                "responses": {
                    "200": {"description": "Tokens", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Code is invalid or expired"}
                }
            }
        },
        "/auth/resend-otp": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Re-issue a one-time code",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResendOTPRequest"}}
                ],
                "responses": {
                    "200": {"description": "Delivery reported without confirming account existence"},
                    "422": {"description": "Unknown purpose or already verified"}
                }
            }
        },
        "/auth/refresh-token": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate a refresh token",
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/RefreshRequest"}}
                ],
                "responses": {
                    "200": {"description": "New token pair", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid or expired refresh token"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Logout the current session",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LogoutRequest"}}
                ],
                "responses": {
                    "200": {"description": "Logged out"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/auth/logout-all": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke every session and invalidate issued tokens",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Logged out everywhere"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current principal",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "User profile", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/auth/sessions": {
            "get": {
                "tags": ["Sessions"],
                "summary": "List sessions with derived status",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "X-Device-Id", "in": "header", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Sessions", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/auth/sessions/revoke": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Revoke active sessions by id or device",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RevokeSessionsRequest"}}
                ],
                "responses": {
                    "200": {"description": "Revoked count", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Missing target"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["phone", "pin"],
            "properties": {
                "phone": {"type": "string"},
                "pin": {"type": "string"}
            }
        },
        "VerifyOTPRequest": {
            "type": "object",
            "required": ["identity", "otp"],
            "properties": {
                "identity": {"type": "string", "description": "Email address or phone number"},
                "otp": {"type": "string", "minLength": 6, "maxLength": 6}
            }
        },
        "ResendOTPRequest": {
            "type": "object",
            "required": ["identity", "purpose"],
            "properties": {
                "identity": {"type": "string"},
                "purpose": {"type": "string", "enum": ["login", "device_verification", "reset_password", "reset_pin", "email_verification"]}
            }
        },
        "RefreshRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            }
        },
        "LogoutRequest": {
            "type": "object",
            "required": ["refresh_token"],
            "properties": {
                "refresh_token": {"type": "string"}
            }
        },
        "RevokeSessionsRequest": {
            "type": "object",
            "properties": {
                "refresh_token_id": {"type": "string"},
                "device_id": {"type": "string"},
                "revoke_current": {"type": "boolean"}
            }
        },
        "ErrorBody": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/ErrorBody"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
