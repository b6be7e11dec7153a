package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Enrollment API",
        "description": "Course enrollment with waitlists and automatic promotion",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Students", "description": "Enrollment requests, drops and waitlists"},
        {"name": "Instructors", "description": "Roster, waitlist and droplist of owned classes"},
        {"name": "Registrar", "description": "Catalog administration and automatic enrollment"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {"200": {"description": "Ready"}, "503": {"description": "Degraded"}}
            }
        },
        "/classes/available": {
            "get": {
                "tags": ["Students"],
                "summary": "List classes open for enrollment",
                "parameters": [{"$ref": "#/parameters/Caller"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/classes/{classId}/seats": {
            "get": {
                "tags": ["Students"],
                "summary": "Available seats of a class",
                "parameters": [{"$ref": "#/parameters/Caller"}, {"$ref": "#/parameters/ClassID"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Class not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments": {
            "post": {
                "tags": ["Students"],
                "summary": "Request enrollment in a class",
                "parameters": [
                    {"$ref": "#/parameters/Caller"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Seated or waitlisted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Window closed or waitlist limits reached", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already enrolled or waitlisted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{classId}": {
            "delete": {
                "tags": ["Students"],
                "summary": "Drop a class",
                "parameters": [{"$ref": "#/parameters/Caller"}, {"$ref": "#/parameters/ClassID"}],
                "responses": {
                    "200": {"description": "Dropped", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/waitlists/{classId}": {
            "delete": {
                "tags": ["Students"],
                "summary": "Leave a class waitlist",
                "parameters": [{"$ref": "#/parameters/Caller"}, {"$ref": "#/parameters/ClassID"}],
                "responses": {
                    "204": {"description": "Removed"},
                    "404": {"description": "Not waitlisted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/waitlists/{classId}/position": {
            "get": {
                "tags": ["Students"],
                "summary": "Waitlist position of the caller",
                "parameters": [{"$ref": "#/parameters/Caller"}, {"$ref": "#/parameters/ClassID"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not waitlisted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/instructors/classes/{classId}/roster": {
            "get": {
                "tags": ["Instructors"],
                "summary": "Class roster",
                "parameters": [{"$ref": "#/parameters/Caller"}, {"$ref": "#/parameters/ClassID"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Class taught by another instructor", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/instructors/classes/{classId}/roster/export": {
            "get": {
                "tags": ["Instructors"],
                "summary": "Download class roster",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"$ref": "#/parameters/Caller"},
                    {"$ref": "#/parameters/ClassID"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {"200": {"description": "Roster file", "schema": {"type": "file"}}}
            }
        },
        "/instructors/classes/{classId}/waitlist": {
            "get": {
                "tags": ["Instructors"],
                "summary": "Class waitlist in promotion order",
                "parameters": [{"$ref": "#/parameters/Caller"}, {"$ref": "#/parameters/ClassID"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/instructors/classes/{classId}/droplist": {
            "get": {
                "tags": ["Instructors"],
                "summary": "Students dropped from the class",
                "parameters": [{"$ref": "#/parameters/Caller"}, {"$ref": "#/parameters/ClassID"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/instructors/classes/{classId}/students/{studentId}": {
            "delete": {
                "tags": ["Instructors"],
                "summary": "Administratively drop a student",
                "parameters": [
                    {"$ref": "#/parameters/Caller"},
                    {"$ref": "#/parameters/ClassID"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Dropped", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Student not enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrar/courses": {
            "get": {
                "tags": ["Registrar"],
                "summary": "List courses",
                "parameters": [{"$ref": "#/parameters/Caller"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Registrar"],
                "summary": "Create course",
                "parameters": [
                    {"$ref": "#/parameters/Caller"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateCourseRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Course exists", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrar/classes": {
            "post": {
                "tags": ["Registrar"],
                "summary": "Create class section",
                "parameters": [
                    {"$ref": "#/parameters/Caller"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateClassRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Section exists", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrar/classes/{classId}": {
            "get": {
                "tags": ["Registrar"],
                "summary": "Get class section",
                "parameters": [{"$ref": "#/parameters/Caller"}, {"$ref": "#/parameters/ClassID"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "patch": {
                "tags": ["Registrar"],
                "summary": "Update class section",
                "description": "A capacity increase promotes waitlisted students when automatic enrollment is on.",
                "parameters": [
                    {"$ref": "#/parameters/Caller"},
                    {"$ref": "#/parameters/ClassID"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateClassRequest"}}
                ],
                "responses": {
                    "200": {"description": "Updated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Capacity below enrolled count", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Registrar"],
                "summary": "Delete class section",
                "parameters": [{"$ref": "#/parameters/Caller"}, {"$ref": "#/parameters/ClassID"}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "409": {"description": "Class has enrolled students", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrar/auto-enrollment": {
            "get": {
                "tags": ["Registrar"],
                "summary": "Automatic enrollment state",
                "parameters": [{"$ref": "#/parameters/Caller"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "put": {
                "tags": ["Registrar"],
                "summary": "Toggle automatic enrollment",
                "description": "Turning it on promotes waitlisted students in every open class.",
                "parameters": [
                    {"$ref": "#/parameters/Caller"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AutoEnrollmentRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/registrar/promotions": {
            "post": {
                "tags": ["Registrar"],
                "summary": "Promote waitlisted students",
                "parameters": [
                    {"$ref": "#/parameters/Caller"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PromoteRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "parameters": {
        "Caller": {"name": "X-CWID", "in": "header", "required": true, "type": "string", "description": "Campus-wide id of the caller"},
        "ClassID": {"name": "classId", "in": "path", "required": true, "type": "string"}
    },
    "definitions": {
        "EnrollRequest": {
            "type": "object",
            "required": ["class_id"],
            "properties": {
                "class_id": {"type": "string"}
            }
        },
        "AutoEnrollmentRequest": {
            "type": "object",
            "required": ["enabled"],
            "properties": {
                "enabled": {"type": "boolean"}
            }
        },
        "PromoteRequest": {
            "type": "object",
            "required": ["class_ids"],
            "properties": {
                "class_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "CreateCourseRequest": {
            "type": "object",
            "required": ["department_code", "course_no", "title"],
            "properties": {
                "department_code": {"type": "string"},
                "course_no": {"type": "integer"},
                "title": {"type": "string"}
            }
        },
        "CreateClassRequest": {
            "type": "object",
            "required": ["course_id", "section_no", "academic_year", "semester", "instructor_id", "course_start_date", "enrollment_start", "enrollment_end"],
            "properties": {
                "course_id": {"type": "string"},
                "section_no": {"type": "integer"},
                "academic_year": {"type": "integer"},
                "semester": {"type": "string", "enum": ["SP", "SU", "FA", "WI"]},
                "instructor_id": {"type": "string"},
                "room_number": {"type": "string"},
                "room_capacity": {"type": "integer"},
                "course_start_date": {"type": "string", "format": "date-time"},
                "enrollment_start": {"type": "string", "format": "date-time"},
                "enrollment_end": {"type": "string", "format": "date-time"}
            }
        },
        "UpdateClassRequest": {
            "type": "object",
            "properties": {
                "section_no": {"type": "integer"},
                "instructor_id": {"type": "string"},
                "room_number": {"type": "string"},
                "room_capacity": {"type": "integer"},
                "course_start_date": {"type": "string", "format": "date-time"},
                "enrollment_start": {"type": "string", "format": "date-time"},
                "enrollment_end": {"type": "string", "format": "date-time"}
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
