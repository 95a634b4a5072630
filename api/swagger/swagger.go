// Package swagger serves the OpenAPI document at /docs.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Pre-enrollment API",
        "description": "Course pre-enrollment for students and the administrative console.",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": ["http"],
    "securityDefinitions": {"BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}},
    "paths": {
        "/health": {"get": {"summary": "Liveness check", "responses": {"200": {"description": "OK"}}}},
        "/ready": {
            "get": {
                "summary": "Readiness check against PostgreSQL and Redis",
                "responses": {"200": {"description": "Ready"}, "503": {"description": "A dependency is down"}}
            }
        },
        "/api/v1/auth/admins/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate admin",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/AdminLoginRequest"}
                    }
                ]
            }
        },
        "/api/v1/auth/students/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate student",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/StudentLoginRequest"}
                    }
                ]
            }
        },
        "/api/v1/auth/students/register": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register student account",
                "produces": ["application/json"],
                "responses": {
                    "201": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/StudentRegisterRequest"}
                    }
                ]
            }
        },
        "/api/v1/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/RefreshTokenRequest"}
                    }
                ]
            }
        },
        "/api/v1/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Logout",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/auth/students/change-password": {
            "patch": {
                "tags": ["Authentication"],
                "summary": "Change student password",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/ChangePasswordRequest"}
                    }
                ]
            }
        },
        "/api/v1/auth/admins/change-password": {
            "patch": {
                "tags": ["Authentication"],
                "summary": "Change admin password",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/ChangePasswordRequest"}
                    }
                ]
            }
        },
        "/api/v1/careers": {
            "get": {
                "tags": ["Careers"],
                "summary": "List careers",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Careers"],
                "summary": "Create career",
                "produces": ["application/json"],
                "responses": {
                    "201": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/careers/{id}": {
            "patch": {
                "tags": ["Careers"],
                "summary": "Rename career",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}]
            },
            "delete": {
                "tags": ["Careers"],
                "summary": "Delete career",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}]
            }
        },
        "/api/v1/subjects": {
            "get": {
                "tags": ["Subjects"],
                "summary": "List subjects",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ]
            },
            "post": {
                "tags": ["Subjects"],
                "summary": "Create subject",
                "produces": ["application/json"],
                "responses": {
                    "201": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/subjects/{id}": {
            "get": {
                "tags": ["Subjects"],
                "summary": "Get subject",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}]
            },
            "patch": {
                "tags": ["Subjects"],
                "summary": "Rename subject",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}]
            },
            "delete": {
                "tags": ["Subjects"],
                "summary": "Delete subject",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}]
            }
        },
        "/api/v1/career-subjects": {
            "get": {
                "tags": ["CareerSubjects"],
                "summary": "Offerings of a career",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "career_id", "in": "query", "type": "string"},
                    {"name": "semester", "in": "query", "type": "integer"}
                ]
            },
            "post": {
                "tags": ["CareerSubjects"],
                "summary": "Place subjects in a career",
                "produces": ["application/json"],
                "responses": {
                    "201": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/career-subjects/{id}": {
            "patch": {
                "tags": ["CareerSubjects"],
                "summary": "Move to another semester",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}]
            },
            "delete": {
                "tags": ["CareerSubjects"],
                "summary": "Remove from career",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}]
            }
        },
        "/api/v1/periods": {
            "get": {
                "tags": ["Periods"],
                "summary": "List periods",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            },
            "post": {
                "tags": ["Periods"],
                "summary": "Create period",
                "produces": ["application/json"],
                "responses": {
                    "201": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/CreatePeriodRequest"}
                    }
                ]
            }
        },
        "/api/v1/periods/classified": {
            "get": {
                "tags": ["Periods"],
                "summary": "Active, upcoming and past periods",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/periods/{id}": {
            "patch": {
                "tags": ["Periods"],
                "summary": "Update period",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}]
            },
            "delete": {
                "tags": ["Periods"],
                "summary": "Delete period",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}]
            }
        },
        "/api/v1/periods/advance-semester": {
            "post": {
                "tags": ["Periods"],
                "summary": "Activate a period and promote students",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/AdvanceSemesterRequest"}
                    }
                ]
            }
        },
        "/api/v1/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "career_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ]
            }
        },
        "/api/v1/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get student",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}]
            },
            "patch": {
                "tags": ["Students"],
                "summary": "Update student",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}]
            }
        },
        "/api/v1/enrollments/batch": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Submit the full selection for a period",
                "produces": ["application/json"],
                "responses": {
                    "201": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "Idempotency-Key", "in": "header", "type": "string"},
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/EnrollmentBatchRequest"}
                    }
                ]
            }
        },
        "/api/v1/enrollments/my-status": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Enrollment status for the active period",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "studentId", "in": "query", "type": "integer"}]
            }
        },
        "/api/v1/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Enrollment totals per career subject, group and type",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "careerId", "in": "query", "type": "string"},
                    {"name": "group", "in": "query", "type": "integer"},
                    {"name": "periodId", "in": "query", "type": "string"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ]
            }
        },
        "/api/v1/enrollments/enrollment-details": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Students behind one report row",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "careerSubjectId", "in": "query", "type": "integer", "required": true},
                    {"name": "group", "in": "query", "type": "integer"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "periodId", "in": "query", "type": "string"}
                ]
            }
        },
        "/api/v1/admins/dashboard-stats": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Admin dashboard counters",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/admins/groups": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Distinct student groups",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/api/v1/dba/validate": {
            "get": {
                "tags": ["DBA"],
                "summary": "Check a maintenance token",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {
                        "description": "Invalid maintenance token",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    }
                },
                "parameters": [{"name": "X-DBA-Token", "in": "header", "type": "string"}]
            }
        },
        "/api/v1/dba/students/search": {
            "get": {
                "tags": ["DBA"],
                "summary": "Find students",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {
                        "description": "Invalid maintenance token",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    }
                },
                "parameters": [
                    {"name": "X-DBA-Token", "in": "header", "type": "string"},
                    {"name": "q", "in": "query", "type": "string", "required": true}
                ]
            }
        },
        "/api/v1/dba/students/reset-password": {
            "patch": {
                "tags": ["DBA"],
                "summary": "Set a new student password",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {
                        "description": "Invalid maintenance token",
                        "schema": {"$ref": "#/definitions/ResponseEnvelope"}
                    }
                },
                "parameters": [
                    {"name": "X-DBA-Token", "in": "header", "type": "string"},
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/ResetPasswordRequest"}
                    }
                ]
            }
        },
        "/api/v1/submission-logs": {
            "get": {
                "tags": ["SubmissionLogs"],
                "summary": "List submission logs",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "adminUsername", "in": "query", "type": "string"},
                    {"name": "studentId", "in": "query", "type": "integer"},
                    {"name": "entity", "in": "query", "type": "string"},
                    {"name": "entityId", "in": "query", "type": "string"},
                    {"name": "action", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ]
            }
        }
    },
    "definitions": {
        "AdminLoginRequest": {"type": "object", "properties": {"username": {"type": "string"}, "password": {"type": "string"}}},
        "StudentLoginRequest": {"type": "object", "properties": {"studentId": {"type": "integer"}, "password": {"type": "string"}}},
        "StudentRegisterRequest": {
            "type": "object",
            "properties": {
                "studentId": {"type": "integer"},
                "name": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"},
                "groupNo": {"type": "integer"},
                "semester": {"type": "integer"},
                "careerId": {"type": "string"}
            }
        },
        "RefreshTokenRequest": {"type": "object", "properties": {"refreshToken": {"type": "string"}}},
        "ChangePasswordRequest": {
            "type": "object",
            "properties": {"currentPassword": {"type": "string"}, "newPassword": {"type": "string"}}
        },
        "CreatePeriodRequest": {
            "type": "object",
            "properties": {
                "periodId": {"type": "string"},
                "startDate": {"type": "string", "format": "date"},
                "endDate": {"type": "string", "format": "date"}
            }
        },
        "AdvanceSemesterRequest": {"type": "object", "properties": {"newPeriodId": {"type": "string"}}},
        "EnrollmentItem": {
            "type": "object",
            "properties": {
                "careerSubjectId": {"type": "integer"},
                "type": {"type": "string", "enum": ["NORMAL", "ADELANTO", "RECURSAMIENTO"]}
            }
        },
        "EnrollmentBatchRequest": {
            "type": "object",
            "properties": {
                "periodId": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/EnrollmentItem"}}
            }
        },
        "ResetPasswordRequest": {
            "type": "object",
            "properties": {"studentId": {"type": "integer"}, "newPassword": {"type": "string"}}
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "errors": {"type": "array", "items": {"type": "string"}}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
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
