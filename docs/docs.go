// Package docs holds the OpenAPI description served at /swagger/.
// Regenerate with: swag init -g cmd/server/main.go
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
        "/auth/signup": {
            "post": {
                "tags": ["auth"],
                "summary": "Sign up a new user",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/controllers.SignUpRequest"}}],
                "responses": {
                    "201": {"description": "data contains the created user", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "400": {"description": "error.code: bad_request", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "409": {"description": "error.code: conflict", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["auth"],
                "summary": "Log in",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/controllers.LoginRequest"}}],
                "responses": {
                    "200": {"description": "data contains token and token_type", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "401": {"description": "error.code: unauthorized", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}
                }
            }
        },
        "/events": {
            "get": {
                "tags": ["events"],
                "summary": "List published events",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "integer", "description": "Page number (default 1)", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Page size (default 20, max 100)", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "data contains items and pagination", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "400": {"description": "error.code: bad_request", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Create a new event",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "event", "required": true, "schema": {"$ref": "#/definitions/controllers.CreateEventRequest"}}],
                "responses": {
                    "201": {"description": "data contains the created event", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "400": {"description": "error.code: bad_request", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "403": {"description": "error.code: forbidden", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}
                }
            }
        },
        "/organizer/events": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "List my events",
                "produces": ["application/json"],
                "responses": {"200": {"description": "data is an array of events", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}}
            }
        },
        "/events/{eventID}": {
            "get": {
                "tags": ["events"],
                "summary": "Get an event by ID",
                "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "data contains the event", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "404": {"description": "error.code: not_found", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}
                }
            },
            "patch": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Update event details",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "eventID", "in": "path", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/controllers.UpdateEventRequest"}}
                ],
                "responses": {
                    "200": {"description": "data contains the updated event", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "403": {"description": "error.code: forbidden", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "404": {"description": "error.code: not_found", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Delete an event",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "403": {"description": "error.code: forbidden", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "404": {"description": "error.code: not_found", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}
                }
            }
        },
        "/events/{eventID}/publish": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Publish an event",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "data contains the published event", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "409": {"description": "error.code: conflict", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}
                }
            }
        },
        "/events/{eventID}/cancel": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Cancel an event",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "data contains the cancelled event", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "409": {"description": "error.code: conflict", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}
                }
            }
        },
        "/events/{eventID}/availability": {
            "get": {
                "tags": ["registrations"],
                "summary": "Get seat availability",
                "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "data contains the seat counters", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "404": {"description": "error.code: not_found", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}
                }
            }
        },
        "/events/{eventID}/registrations": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["registrations"],
                "summary": "List an event's registrations",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "eventID", "in": "path", "required": true},
                    {"type": "string", "description": "CONFIRMED or CANCELLED", "name": "status", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "data is an array of registrations", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "403": {"description": "error.code: forbidden", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}
                }
            }
        },
        "/registrations/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["registrations"],
                "summary": "List my registrations",
                "produces": ["application/json"],
                "parameters": [{"type": "string", "description": "CONFIRMED or CANCELLED", "name": "status", "in": "query"}],
                "responses": {"200": {"description": "data is an array of registration and event pairs", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}}
            }
        },
        "/registrations/{eventID}": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["registrations"],
                "summary": "Register for an event",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "eventID", "in": "path", "required": true},
                    {"type": "string", "description": "Client-chosen key for safe retries", "name": "X-Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "201": {"description": "data contains the confirmed registration", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "404": {"description": "error.code: not_found", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "409": {"description": "error.code: conflict or request_in_progress", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "503": {"description": "error.code: transient_conflict or store_unavailable", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["registrations"],
                "summary": "Cancel my registration",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "error.code: not_found", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}
                }
            }
        },
        "/healthz": {
            "get": {
                "tags": ["health"],
                "summary": "Health check",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "data.status is ok", "schema": {"$ref": "#/definitions/helpers.APIResponse"}},
                    "503": {"description": "data.status is degraded", "schema": {"$ref": "#/definitions/helpers.APIResponse"}}
                }
            }
        }
    },
    "definitions": {
        "helpers.APIError": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "message": {"type": "string"}}
        },
        "helpers.APIResponse": {
            "type": "object",
            "properties": {"data": {}, "error": {"$ref": "#/definitions/helpers.APIError"}}
        },
        "controllers.SignUpRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "name": {"type": "string"},
                "role": {"type": "string"}
            }
        },
        "controllers.LoginRequest": {
            "type": "object",
            "properties": {"email": {"type": "string"}, "password": {"type": "string"}}
        },
        "controllers.CreateEventRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "category": {"type": "string"},
                "image_url": {"type": "string"},
                "event_date": {"type": "string"},
                "location_city": {"type": "string"},
                "location_address": {"type": "string"},
                "total_seats": {"type": "integer"},
                "status": {"type": "string"}
            }
        },
        "controllers.UpdateEventRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "category": {"type": "string"},
                "image_url": {"type": "string"},
                "event_date": {"type": "string"},
                "location_city": {"type": "string"},
                "location_address": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Event Registration API",
	Description:      "Event catalog and seat reservations.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
