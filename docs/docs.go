package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Agenda OS Backend",
    "description": "Conversational scheduling of field-service visits",
    "version": "1.0"
  },
  "basePath": "/",
  "paths": {
    "/webhook/messages": {"post": {"tags": ["webhook"], "summary": "Handle an inbound chat message", "responses": {"200": {"description": "reply"}, "204": {"description": "duplicate event"}}}},
    "/api/sessions/{sender}": {
      "get": {"tags": ["sessions"], "summary": "Get a conversation session", "responses": {"200": {"description": "session"}, "404": {"description": "not found"}}},
      "delete": {"tags": ["sessions"], "summary": "Reset a conversation session", "responses": {"204": {"description": "deleted"}}}
    },
    "/api/slots/check": {"post": {"tags": ["slots"], "summary": "Validate a slot for an order", "responses": {"200": {"description": "valid slot"}, "422": {"description": "slot rejected"}}}},
    "/api/orders/{id}/suggestion": {"get": {"tags": ["slots"], "summary": "First valid slot for an order", "responses": {"200": {"description": "slot"}, "422": {"description": "no slot"}}}},
    "/api/policies": {"get": {"tags": ["policies"], "summary": "Loaded scheduling policies", "responses": {"200": {"description": "policies"}}}}
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
