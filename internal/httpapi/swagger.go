package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// SwaggerInfo holds the API document served under /swagger/.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "phasebus API",
	Description:      "Event injection and status for the phasebus host loop.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the Swagger UI and doc.json under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "basePath": "{{.BasePath}}",
    "paths": {
        "/events": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Inject an event",
                "parameters": [
                    {
                        "description": "Event",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/types.EventRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.EventAccepted"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/phases": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Configured phases",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.PhasesResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Bus status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 400},
                "error": {"type": "string", "example": "invalid JSON body"}
            }
        },
        "types.EventAccepted": {
            "type": "object",
            "properties": {
                "mode": {"type": "string", "example": "phased"},
                "offset": {"type": "integer", "example": 1},
                "phase": {"type": "string", "example": "tick"}
            }
        },
        "types.EventRequest": {
            "type": "object",
            "properties": {
                "key": {"type": "string", "example": "player-1"},
                "offset": {"type": "integer", "example": 0},
                "phase": {"type": "string", "example": "tick"},
                "text": {"type": "string", "example": "hello"}
            }
        },
        "types.PhaseInfo": {
            "type": "object",
            "properties": {
                "id": {"type": "integer", "example": 1},
                "name": {"type": "string", "example": "tick"}
            }
        },
        "types.PhasesResponse": {
            "type": "object",
            "properties": {
                "phases": {"type": "array", "items": {"$ref": "#/definitions/types.PhaseInfo"}}
            }
        },
        "types.PhaseStatus": {
            "type": "object",
            "properties": {
                "delayed": {"type": "integer"},
                "id": {"type": "integer"},
                "name": {"type": "string"},
                "pending": {"type": "integer"},
                "runs": {"type": "integer"}
            }
        },
        "types.PayloadStatus": {
            "type": "object",
            "properties": {
                "keyed_subscribers": {"type": "integer"},
                "keys": {"type": "integer"},
                "pending": {"type": "integer"},
                "subscribers": {"type": "integer"},
                "type": {"type": "string"}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "delayed": {"type": "integer"},
                "payloads": {"type": "array", "items": {"$ref": "#/definitions/types.PayloadStatus"}},
                "phase_queue": {"type": "array", "items": {"type": "integer"}},
                "phases": {"type": "array", "items": {"$ref": "#/definitions/types.PhaseStatus"}},
                "process_pending": {"type": "integer"},
                "received": {"type": "integer"},
                "ticks": {"type": "integer"}
            }
        }
    }
}`
