// Package docs registers the OpenAPI document served at /swagger/.
// Regenerate with: swag init -g main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/auth/login": {
            "post": {
                "description": "Exchanges a username and password for a bearer access token. Accepts JSON or an OAuth2 password form.",
                "consumes": ["application/json", "application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Log in",
                "parameters": [
                    {
                        "description": "Credentials",
                        "name": "credentials",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/auth.LoginRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Access token", "schema": {"$ref": "#/definitions/types.AccessToken"}},
                    "400": {"description": "Malformed body", "schema": {"$ref": "#/definitions/api.ErrorBody"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/api.ErrorBody"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/api.ErrorBody"}}
                }
            }
        },
        "/auth/profile": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns the user identified by the bearer token.",
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "Authenticated user", "schema": {"$ref": "#/definitions/auth.UserResponse"}},
                    "401": {"description": "Invalid token", "schema": {"$ref": "#/definitions/api.ErrorBody"}}
                }
            }
        },
        "/auth/register": {
            "post": {
                "description": "Creates a user account. The password is stored hashed.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Register a user",
                "parameters": [
                    {
                        "description": "New user",
                        "name": "user",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/auth.RegisterRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created user", "schema": {"$ref": "#/definitions/auth.UserResponse"}},
                    "400": {"description": "Username already registered or invalid input", "schema": {"$ref": "#/definitions/api.ErrorBody"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/api.ErrorBody"}}
                }
            }
        }
    },
    "definitions": {
        "api.ErrorBody": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "Invalid credentials"},
                "request_id": {"type": "string", "example": "host/abc123-000001"},
                "success": {"type": "boolean", "example": false}
            }
        },
        "auth.LoginRequest": {
            "type": "object",
            "properties": {
                "grant_type": {"type": "string"},
                "password": {"type": "string", "example": "s3cret-passw0rd"},
                "scope": {"type": "string"},
                "username": {"type": "string", "example": "alice"}
            }
        },
        "auth.RegisterRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string", "example": "alice@example.com"},
                "password": {"type": "string", "example": "s3cret-passw0rd"},
                "username": {"type": "string", "example": "alice"}
            }
        },
        "auth.UserResponse": {
            "type": "object",
            "properties": {
                "email": {"type": "string", "example": "alice@example.com"},
                "id": {"type": "integer", "example": 1},
                "username": {"type": "string", "example": "alice"}
            }
        },
        "types.AccessToken": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string", "example": "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."},
                "token_type": {"type": "string", "example": "bearer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "im-auth API",
	Description:      "User registration, login and bearer-token identification.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
