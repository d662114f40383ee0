package tools

import "encoding/json"

// Argument schemas for the sales tools. Search schemas accept additional
// properties so corrected parameter aliases survive validation; the argument
// filter drops unknown names before execution.

var searchLeadsSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "fullName": {"type": "array", "items": {"type": "string"}},
    "seniority": {"type": "array", "items": {"type": "string"}},
    "functionalLevel": {"type": "array", "items": {"type": "string"}},
    "designation": {"type": "array", "items": {"type": "string"}},
    "country": {"type": "array", "items": {"type": "string"}},
    "state": {"type": "array", "items": {"type": "string"}},
    "city": {"type": "array", "items": {"type": "string"}},
    "companyName": {"type": "array", "items": {"type": "string"}},
    "companyIds": {"type": "array", "items": {"type": ["string", "number"]}},
    "hqCountry": {"type": "array", "items": {"type": "string"}},
    "hqState": {"type": "array", "items": {"type": "string"}},
    "hqCity": {"type": "array", "items": {"type": "string"}},
    "industry": {"type": "array", "items": {"type": "string"}},
    "size": {"type": "array", "items": {"type": "string"}},
    "revenue": {"type": "array", "items": {"type": "string"}},
    "fundingType": {"type": "array", "items": {"type": "string"}},
    "fundingMinDate": {"type": "string"},
    "fundingMaxDate": {"type": "string"},
    "limit": {"type": "integer", "minimum": 1}
  },
  "additionalProperties": true
}`)

var searchCompaniesSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "companyName": {"type": "array", "items": {"type": "string"}},
    "hqCountry": {"type": "array", "items": {"type": "string"}},
    "hqState": {"type": "array", "items": {"type": "string"}},
    "hqCity": {"type": "array", "items": {"type": "string"}},
    "industry": {"type": "array", "items": {"type": "string"}},
    "companytype": {"type": "array", "items": {"type": "string"}},
    "hiringAreas": {"type": "array", "items": {"type": "string"}},
    "speciality": {"type": "array", "items": {"type": "string"}},
    "size": {"type": "array", "items": {"type": "string"}},
    "revenue": {"type": "array", "items": {"type": "string"}},
    "fundingType": {"type": "array", "items": {"type": "string"}},
    "fundingMinDate": {"type": "string"},
    "fundingMaxDate": {"type": "string"},
    "limit": {"type": "integer", "minimum": 1}
  },
  "additionalProperties": true
}`)

var generateEmailSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "tone": {"type": "string"},
    "email_type": {"type": "string"},
    "purpose": {"type": "string"},
    "example": {"type": "string"}
  },
  "additionalProperties": false
}`)

var createCadenceSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "cadence_type": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "start_date": {
      "type": "object",
      "properties": {
        "year": {"type": "integer"},
        "month": {"type": "integer"},
        "day": {"type": "integer"}
      }
    },
    "start_time": {
      "type": "object",
      "properties": {
        "hour": {"type": "integer"},
        "minute": {"type": "integer"},
        "second": {"type": "integer"}
      }
    },
    "white_days": {"type": "array", "items": {"type": "string"}},
    "is_active": {"type": "boolean"},
    "status": {"type": "string"},
    "template_details": {
      "type": "object",
      "properties": {
        "subject": {"type": "string"},
        "body": {"type": "string"}
      }
    }
  },
  "required": ["name"],
  "additionalProperties": true
}`)

var addContactsSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "cadence_id": {"type": "string", "minLength": 1},
    "recipients_ids": {
      "type": "array",
      "items": {"type": ["string", "number"]},
      "minItems": 1
    }
  },
  "required": ["cadence_id", "recipients_ids"],
  "additionalProperties": false
}`)
