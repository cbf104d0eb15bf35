package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/upload/init": {
            "post": {
                "security": [{"BearerAuth": []}, {"ApiKeyAuth": []}],
                "consumes": ["application/json", "multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Uploads"],
                "summary": "Open an upload session",
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.InitUploadRequest"}}
                ],
                "responses": {
                    "200": {"description": "Session opened", "schema": {"$ref": "#/definitions/types.InitUploadResponse"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "500": {"description": "Storage failure", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/upload/chunk/{uploadId}": {
            "post": {
                "security": [{"BearerAuth": []}, {"ApiKeyAuth": []}],
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Uploads"],
                "summary": "Store one chunk, replacing any earlier bytes at that index",
                "parameters": [
                    {"type": "string", "name": "uploadId", "in": "path", "required": true},
                    {"type": "integer", "name": "index", "in": "formData", "required": true},
                    {"type": "integer", "name": "total_chunks", "in": "formData", "required": true},
                    {"type": "string", "name": "filename", "in": "formData", "required": true},
                    {"type": "file", "name": "chunk", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "Chunk stored", "schema": {"$ref": "#/definitions/types.ChunkUploadResponse"}},
                    "400": {"description": "Invalid chunk", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Upload not found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "409": {"description": "Upload is being finalized", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/upload/finalize/{uploadId}": {
            "post": {
                "security": [{"BearerAuth": []}, {"ApiKeyAuth": []}],
                "consumes": ["application/json", "multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Uploads"],
                "summary": "Assemble the chunks into the final file",
                "parameters": [
                    {"type": "string", "name": "uploadId", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.FinalizeUploadRequest"}}
                ],
                "responses": {
                    "200": {"description": "Artifact committed", "schema": {"$ref": "#/definitions/types.FinalizeUploadResponse"}},
                    "400": {"description": "Missing chunk or invalid request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Upload not found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "409": {"description": "Upload is being finalized", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "500": {"description": "Storage failure", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/upload/status/{uploadId}": {
            "get": {
                "security": [{"BearerAuth": []}, {"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["Uploads"],
                "summary": "Report session progress",
                "parameters": [
                    {"type": "string", "name": "uploadId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Session status", "schema": {"$ref": "#/definitions/types.UploadStatusResponse"}},
                    "404": {"description": "Upload not found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/upload/{uploadId}": {
            "delete": {
                "security": [{"BearerAuth": []}, {"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["Uploads"],
                "summary": "Abort a session and discard its chunks",
                "parameters": [
                    {"type": "string", "name": "uploadId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Session aborted"},
                    "404": {"description": "Upload not found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "409": {"description": "Upload is being finalized", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/auth/token": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["Authentication"],
                "summary": "Exchange an API key for a bearer token",
                "responses": {
                    "200": {"description": "Token issued"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.InitUploadRequest": {
            "type": "object",
            "required": ["filename", "filesize", "filetype"],
            "properties": {
                "filename": {"type": "string"},
                "filesize": {"type": "integer"},
                "filetype": {"type": "string"}
            }
        },
        "types.InitUploadResponse": {
            "type": "object",
            "properties": {
                "upload_id": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "types.ChunkUploadResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "chunk_index": {"type": "integer"}
            }
        },
        "types.FinalizeUploadRequest": {
            "type": "object",
            "required": ["filename", "total_chunks"],
            "properties": {
                "filename": {"type": "string"},
                "total_chunks": {"type": "integer"}
            }
        },
        "types.FinalizeUploadResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "filename": {"type": "string"},
                "path": {"type": "string"},
                "url": {"type": "string"},
                "size": {"type": "integer"},
                "sha256": {"type": "string"}
            }
        },
        "types.UploadStatusResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "chunks_received": {"type": "integer"},
                "upload_id": {"type": "string"},
                "path": {"type": "string"},
                "filename": {"type": "string"},
                "url": {"type": "string"},
                "size": {"type": "integer"},
                "sha256": {"type": "string"}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "message": {"type": "string"},
                "field": {"type": "string"},
                "missing_index": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"},
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Stockpile Chunked Upload API",
	Description:      "Resumable chunked uploads: open a session, send numbered chunks in any order, then finalize to assemble the file.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
