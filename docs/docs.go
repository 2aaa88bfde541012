// Package docs registers the OpenAPI document served at /swagger/doc.json.
// Regenerate from the handler annotations with `swag init -g cmd/sercha-rag/main.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "Apache 2.0"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StatusResponse"}}}
            }
        },
        "/ready": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness check",
                "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}
            }
        },
        "/version": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Get API version",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/http.VersionResponse"}}}
            }
        },
        "/api/v1/scrape": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Ingestion"],
                "summary": "Scrape URLs",
                "parameters": [
                    {"type": "string", "name": "X-User", "in": "header"},
                    {"type": "boolean", "name": "sync", "in": "query"},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.ScrapeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.ScrapeResponse"}},
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/http.TaskResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/api/v1/ask": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Retrieval"],
                "summary": "Ask a question",
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.AskRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Answer"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "No matching content", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "502": {"description": "Generation service error", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/api/v1/summary": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Retrieval"],
                "summary": "Summarise pages",
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.SummaryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Summary"}},
                    "404": {"description": "No matching content", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/api/v1/pages": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Pages"],
                "summary": "List pages",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/pages/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Pages"],
                "summary": "Get a page",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            },
            "delete": {
                "tags": ["Pages"],
                "summary": "Delete a page",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/pages/{id}/rescrape": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Ingestion"],
                "summary": "Rescrape a page",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/http.TaskResponse"}}}
            }
        },
        "/api/v1/reset": {
            "post": {
                "tags": ["Pages"],
                "summary": "Reset the caller",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/tasks": {
            "get": {
                "tags": ["Tasks"],
                "summary": "List tasks",
                "parameters": [{"type": "integer", "name": "limit", "in": "query"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/tasks/{id}": {
            "get": {
                "tags": ["Tasks"],
                "summary": "Get task status",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            },
            "delete": {
                "tags": ["Tasks"],
                "summary": "Cancel a pending task",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "400": {"description": "Task already started"}}
            }
        },
        "/api/v1/admin/reset": {
            "delete": {
                "tags": ["Admin"],
                "summary": "Clear all data",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/admin/queue": {
            "get": {
                "tags": ["Admin"],
                "summary": "Queue statistics",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "domain.Answer": {
            "type": "object",
            "properties": {
                "question": {"type": "string"},
                "answer": {"type": "string"},
                "sources": {"type": "array", "items": {"$ref": "#/definitions/domain.Source"}}
            }
        },
        "domain.Source": {
            "type": "object",
            "properties": {
                "url": {"type": "string"},
                "title": {"type": "string"},
                "distance": {"type": "number"},
                "chunk_preview": {"type": "string"}
            }
        },
        "domain.Summary": {
            "type": "object",
            "properties": {
                "urls": {"type": "array", "items": {"type": "string"}},
                "summary": {"type": "string"},
                "chunk_count": {"type": "integer"}
            }
        },
        "domain.IngestResult": {
            "type": "object",
            "properties": {
                "url": {"type": "string"},
                "page_id": {"type": "string"},
                "title": {"type": "string"},
                "chunks": {"type": "integer"},
                "error": {"type": "string"}
            }
        },
        "http.AskRequest": {
            "type": "object",
            "properties": {
                "question": {"type": "string", "example": "What is the refund window?"},
                "top_k": {"type": "integer", "example": 5}
            }
        },
        "http.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string", "example": "invalid request body"}}
        },
        "http.ScrapeRequest": {
            "type": "object",
            "properties": {
                "urls": {"type": "array", "items": {"type": "string"}},
                "render_js": {"type": "boolean"}
            }
        },
        "http.ScrapeResponse": {
            "type": "object",
            "properties": {
                "results": {"type": "array", "items": {"$ref": "#/definitions/domain.IngestResult"}},
                "stored": {"type": "integer"},
                "failed": {"type": "integer"}
            }
        },
        "http.StatusResponse": {
            "type": "object",
            "properties": {"status": {"type": "string", "example": "ok"}}
        },
        "http.SummaryRequest": {
            "type": "object",
            "properties": {"urls": {"type": "array", "items": {"type": "string"}}}
        },
        "http.TaskResponse": {
            "type": "object",
            "properties": {
                "task_id": {"type": "string"},
                "status": {"type": "string", "example": "pending"}
            }
        },
        "http.VersionResponse": {
            "type": "object",
            "properties": {"version": {"type": "string", "example": "1.0.0"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Sercha RAG API",
	Description:      "Scrape web pages and PDFs into a per-user vector store and ask questions over them.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
