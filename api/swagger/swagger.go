package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Studiva Automation API",
        "description": "Relationship inference and workflow automation for school records",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Workflows", "description": "Multi-step automation workflows"},
        {"name": "Suggestions", "description": "Relationship inference and suggestion review"}
    ],
    "paths": {
        "/workflows/execute": {
            "post": {
                "tags": ["Workflows"],
                "summary": "Execute an automation workflow",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExecuteWorkflowRequest"}}
                ],
                "responses": {
                    "201": {"description": "Execution record", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unknown workflow type or invalid trigger data"}
                }
            }
        },
        "/workflows": {
            "get": {
                "tags": ["Workflows"],
                "summary": "List workflow executions",
                "parameters": [
                    {"name": "workflowType", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "createdBy", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Executions", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workflows/{id}/status": {
            "get": {
                "tags": ["Workflows"],
                "summary": "Get workflow execution status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Execution record", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown execution"}
                }
            }
        },
        "/workflows/{id}/rollback": {
            "post": {
                "tags": ["Workflows"],
                "summary": "Roll back a failed workflow execution",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Execution record", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown execution"},
                    "409": {"description": "Execution is not in the failed state"}
                }
            }
        },
        "/workflows/infer-relationships": {
            "post": {
                "tags": ["Suggestions"],
                "summary": "Run relationship inference for an entity",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/InferRelationshipsRequest"}}
                ],
                "responses": {
                    "200": {"description": "Analysis with persisted suggestions", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unknown entity type"},
                    "404": {"description": "Unknown entity"}
                }
            }
        },
        "/workflows/relationship-suggestions": {
            "get": {
                "tags": ["Suggestions"],
                "summary": "List suggestions across entities",
                "responses": {
                    "200": {"description": "Suggestions", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workflows/relationship-suggestions/{entityType}/{entityId}": {
            "get": {
                "tags": ["Suggestions"],
                "summary": "List pending suggestions for one entity",
                "parameters": [
                    {"name": "entityType", "in": "path", "required": true, "type": "string"},
                    {"name": "entityId", "in": "path", "required": true, "type": "string"},
                    {"name": "suggestionType", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Pending suggestions, highest confidence first", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unknown entity or suggestion type"}
                }
            }
        },
        "/workflows/apply-relationship": {
            "post": {
                "tags": ["Suggestions"],
                "summary": "Apply a relationship suggestion",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplyRelationshipRequest"}}
                ],
                "responses": {
                    "200": {"description": "Apply result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown suggestion or entity"}
                }
            }
        },
        "/workflows/suggestions": {
            "get": {
                "tags": ["Suggestions"],
                "summary": "List suggestions matching a filter",
                "parameters": [
                    {"name": "entityType", "in": "query", "type": "string"},
                    {"name": "entityId", "in": "query", "type": "string"},
                    {"name": "suggestionType", "in": "query", "type": "string"},
                    {"name": "minConfidence", "in": "query", "type": "number"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Suggestions", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workflows/suggestions/{id}": {
            "put": {
                "tags": ["Suggestions"],
                "summary": "Record a reviewer decision on a suggestion",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReviewSuggestionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Updated suggestion", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown suggestion"},
                    "409": {"description": "Accepted suggestions cannot be reverted"}
                }
            }
        },
        "/workflows/suggestions/export": {
            "get": {
                "tags": ["Suggestions"],
                "summary": "Export suggestions as CSV or PDF",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File attachment"}
                }
            }
        }
    },
    "definitions": {
        "ExecuteWorkflowRequest": {
            "type": "object",
            "required": ["workflowType", "triggerData"],
            "properties": {
                "workflowType": {"type": "string", "enum": ["student_creation", "teacher_assignment", "class_configuration"]},
                "triggerData": {"type": "object"},
                "createdBy": {"type": "string"}
            }
        },
        "InferRelationshipsRequest": {
            "type": "object",
            "required": ["entityType", "entityId"],
            "properties": {
                "entityType": {"type": "string", "enum": ["student", "parent", "teacher", "class"]},
                "entityId": {"type": "string"},
                "context": {"type": "object"}
            }
        },
        "ApplyRelationshipRequest": {
            "type": "object",
            "required": ["suggestionId"],
            "properties": {
                "suggestionId": {"type": "string"}
            }
        },
        "ReviewSuggestionRequest": {
            "type": "object",
            "required": ["accepted"],
            "properties": {
                "accepted": {"type": "boolean"},
                "appliedData": {"type": "object"}
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
