package validation

import "strings"

var fieldMessages = map[string]map[string]string{
	"name": {
		"required": "Please enter your name.",
		"min":      "Name must be at least 2 characters.",
		"max":      "Name must be 100 characters or fewer.",
	},
	"email": {
		"required":       "Please enter your email address.",
		"email":          "Please enter a valid email address.",
		"max":            "Email must be 254 characters or fewer.",
		"business_email": "Please use a business email address.",
	},
	"phone": {
		"max":   "Phone number must be 50 characters or fewer.",
		"phone": "Please enter a valid phone number.",
	},
	"message": {
		"required": "Please enter a message.",
		"max":      "Message must be 5000 characters or fewer.",
	},
}

const fallbackMessage = "This field is invalid."

func fieldName(structField string) string {
	return strings.ToLower(structField)
}

// fieldMessage never echoes validator output, which can include input values.
func fieldMessage(structField, tag string) string {
	if byTag, ok := fieldMessages[fieldName(structField)]; ok {
		if msg, ok := byTag[tag]; ok {
			return msg
		}
	}
	return fallbackMessage
}
