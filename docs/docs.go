// Package docs registers the dispatchd OpenAPI document with swag. It is
// regenerated by `swag init -g cmd/dispatchd/docs.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "dispatchd maintainers"},
        "license": {"name": "MIT", "url": "https://opensource.org/licenses/MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/dispatch": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json", "application/x-ndjson"],
                "summary": "Dispatch a prompt",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.DispatchRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.DispatchResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Capacity exhausted", "schema": {"$ref": "#/definitions/types.DispatchResponse"}},
                    "502": {"description": "Generation failure", "schema": {"$ref": "#/definitions/types.DispatchResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "summary": "Pool status",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}
            }
        },
        "/ports": {
            "get": {
                "produces": ["application/json"],
                "summary": "Port range status",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.PortsResponse"}}}
            }
        },
        "/ports/resolve": {
            "post": {
                "produces": ["application/json"],
                "summary": "Obtain a usable backend port",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ResolveResponse"}},
                    "503": {"description": "Exhausted", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/ports/{port}": {
            "delete": {
                "summary": "Stop a launched backend",
                "parameters": [{"in": "path", "name": "port", "required": true, "type": "integer"}],
                "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}
            }
        }
    },
    "definitions": {
        "types.DispatchRequest": {
            "type": "object",
            "properties": {
                "prompt": {"type": "string"},
                "task_description": {"type": "string"},
                "mode": {"type": "string", "enum": ["race", "pooled"]},
                "model": {"type": "string"},
                "stream": {"type": "boolean"}
            }
        },
        "types.DispatchResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "mode": {"type": "string"},
                "success": {"type": "boolean"},
                "winner": {"type": "string"},
                "response": {"type": "string"},
                "elapsed_ms": {"type": "integer"},
                "completed_ais": {"type": "integer"},
                "total_ais": {"type": "integer"},
                "port": {"type": "integer"},
                "model": {"type": "string"},
                "error_kind": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "types.StatusResponse": {"type": "object"},
        "types.PortsResponse": {"type": "object"},
        "types.ResolveResponse": {
            "type": "object",
            "properties": {"port": {"type": "integer"}, "spawned": {"type": "boolean"}}
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}, "code": {"type": "integer"}, "kind": {"type": "string"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "dispatchd API",
	Description:      "HTTP API for racing prompts across local inference backends and strategies.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
