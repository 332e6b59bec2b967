package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Academic Routine API",
        "description": "Generates and serves the weekly class routine.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Login and token introspection"},
        {"name": "Routine", "description": "Routine generation, viewing and export"},
        {"name": "Observability", "description": "Run and request metrics"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Get current user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/routine/generate": {
            "post": {
                "tags": ["Routine"],
                "summary": "Generate the weekly routine",
                "description": "Replaces the stored routine. With async=true the run is queued and a job is returned.",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/GenerateRoutineRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/GenerateRoutineEnvelope"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/RoutineJobEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "No time slots or invalid course data", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Generation disabled or queue full", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/routine/jobs/{id}": {
            "get": {
                "tags": ["Routine"],
                "summary": "Get async generation status",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/RoutineJobEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/routine": {
            "get": {
                "tags": ["Routine"],
                "summary": "List the routine",
                "description": "Students always see their own department and semester. Teachers see their own classes unless another filter is given.",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "departmentId", "in": "query", "type": "string"},
                    {"name": "semesterId", "in": "query", "type": "string"},
                    {"name": "teacherId", "in": "query", "type": "string"},
                    {"name": "day", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/routine/runs/latest": {
            "get": {
                "tags": ["Routine"],
                "summary": "Latest generation run",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No routine generated yet", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/routine/export": {
            "get": {
                "tags": ["Routine"],
                "summary": "Export the routine as CSV or PDF",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"], "default": "csv"},
                    {"name": "departmentId", "in": "query", "type": "string"},
                    {"name": "semesterId", "in": "query", "type": "string"},
                    {"name": "teacherId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "400": {"description": "Unsupported format", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "System metrics summary",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "GenerateRoutineRequest": {
            "type": "object",
            "properties": {
                "strategy": {"type": "string", "enum": ["greedy", "backtracking"]},
                "seed": {"type": "integer", "format": "int64"},
                "async": {"type": "boolean"},
                "dryRun": {"type": "boolean"}
            }
        },
        "GenerateRoutineResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "run_id": {"type": "string"},
                "strategy": {"type": "string"},
                "seed": {"type": "integer", "format": "int64"},
                "fell_back": {"type": "boolean"},
                "total_sessions_needed": {"type": "integer"},
                "sessions_scheduled": {"type": "integer"},
                "dropped_sessions_count": {"type": "integer"},
                "dropped_sessions": {"type": "array", "items": {"type": "string"}},
                "slots_filled": {"type": "integer"},
                "dry_run": {"type": "boolean"},
                "message": {"type": "string"}
            }
        },
        "RoutineJobResponse": {
            "type": "object",
            "properties": {
                "job_id": {"type": "string"},
                "status": {"type": "string", "enum": ["QUEUED", "RUNNING", "COMPLETED", "FAILED"]},
                "result": {"$ref": "#/definitions/GenerateRoutineResponse"},
                "error": {"type": "string"},
                "enqueued_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "GenerateRoutineEnvelope": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/GenerateRoutineResponse"},
                "error": {"$ref": "#/definitions/APIError"}
            }
        },
        "RoutineJobEnvelope": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/RoutineJobResponse"},
                "error": {"$ref": "#/definitions/APIError"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
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
