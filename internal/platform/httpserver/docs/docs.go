// Package docs holds the generated swagger specification served at
// /swagger/doc.json. Regenerate with `swag init` after changing handler
// annotations.
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
        "/api/v1/snapshots/{period_id}/collect": {
            "post": {
                "produces": ["application/json"],
                "tags": ["snapshots"],
                "summary": "Collect a holder balance snapshot for a period",
                "parameters": [
                    {
                        "type": "string",
                        "name": "period_id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Conflict"},
                    "502": {"description": "Bad Gateway"}
                }
            }
        },
        "/api/v1/snapshots/{period_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["snapshots"],
                "summary": "Get a period's snapshot",
                "parameters": [
                    {
                        "type": "string",
                        "name": "period_id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/api/v1/distributions/{period_id}/calculate": {
            "post": {
                "produces": ["application/json"],
                "tags": ["distributions"],
                "summary": "Calculate a period's reward distribution",
                "parameters": [
                    {
                        "type": "string",
                        "name": "period_id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"},
                    "409": {"description": "Conflict"},
                    "412": {"description": "Precondition Failed"}
                }
            }
        },
        "/api/v1/distributions/{period_id}/process": {
            "post": {
                "produces": ["application/json"],
                "tags": ["distributions"],
                "summary": "Run one processing pass over a distribution's batches",
                "parameters": [
                    {
                        "type": "string",
                        "name": "period_id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Conflict"}
                }
            }
        },
        "/api/v1/distributions/{period_id}/retry": {
            "post": {
                "produces": ["application/json"],
                "tags": ["distributions"],
                "summary": "Re-arm a failed distribution for another processing pass",
                "parameters": [
                    {
                        "type": "string",
                        "name": "period_id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Conflict"}
                }
            }
        },
        "/api/v1/distributions/{period_id}/batches/{batch_number}/reconcile": {
            "post": {
                "produces": ["application/json"],
                "tags": ["distributions"],
                "summary": "Resolve a batch left in processing by a crashed run",
                "parameters": [
                    {
                        "type": "string",
                        "name": "period_id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "integer",
                        "name": "batch_number",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"},
                    "409": {"description": "Conflict"}
                }
            }
        },
        "/api/v1/distributions/{period_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["distributions"],
                "summary": "Get a period's distribution with stats",
                "parameters": [
                    {
                        "type": "string",
                        "name": "period_id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/api/v1/distributions/{period_id}/batches": {
            "get": {
                "produces": ["application/json"],
                "tags": ["distributions"],
                "summary": "List a distribution's batches",
                "parameters": [
                    {
                        "type": "string",
                        "name": "period_id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/api/v1/distributions/{period_id}/progress": {
            "get": {
                "produces": ["application/json"],
                "tags": ["distributions"],
                "summary": "Get batch-level execution progress for a distribution",
                "parameters": [
                    {
                        "type": "string",
                        "name": "period_id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/api/v1/distributions/{period_id}/recipients": {
            "get": {
                "produces": ["application/json"],
                "tags": ["distributions"],
                "summary": "List a distribution's recipients with pagination",
                "parameters": [
                    {
                        "type": "string",
                        "name": "period_id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "integer",
                        "name": "limit",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "name": "offset",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Jubilee Rewards API",
	Description:      "Snapshot collection and batched reward distribution endpoints.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
