package customer

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/clientbook/service/internal/storage"
)

// emailRegex is deliberately permissive: one @, no spaces, a dot in the domain.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const (
	maxNameLen  = 255
	maxEmailLen = 255

	// MaxImageSize caps uploaded images at 2 MiB.
	MaxImageSize = 2 << 20
)

// imageDirectory is the bucket directory all customer images live under.
const imageDirectory = "customers"

// allowedImageTypes maps accepted file extensions to their MIME types.
var allowedImageTypes = map[string]string{
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// CreateInput holds the fields of a create request.
type CreateInput struct {
	Name  string
	Email string
}

// UpdateInput holds the fields of an update request; nil means "leave as is".
type UpdateInput struct {
	Name  *string
	Email *string
}

// NormalizeEmail trims and lowercases an email so the syntax check, the
// uniqueness check, and the stored value all agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateName(name string) []Violation {
	var out []Violation
	if name == "" {
		out = append(out, Violation{Field: "name", Rule: "required", Message: "name is required"})
	}
	if len(name) > maxNameLen {
		out = append(out, Violation{Field: "name", Rule: "max", Message: fmt.Sprintf("name must be at most %d characters", maxNameLen)})
	}
	return out
}

func validateEmail(email string) []Violation {
	var out []Violation
	if email == "" {
		return append(out, Violation{Field: "email", Rule: "required", Message: "email is required"})
	}
	if len(email) > maxEmailLen {
		out = append(out, Violation{Field: "email", Rule: "max", Message: fmt.Sprintf("email must be at most %d characters", maxEmailLen)})
	}
	if !emailRegex.MatchString(email) {
		out = append(out, Violation{Field: "email", Rule: "email", Message: "email must be a valid email address"})
	}
	return out
}

// validateImage checks presence (when required), type, and size of an upload.
func validateImage(file *storage.File, required bool) []Violation {
	var out []Violation
	if file == nil {
		if required {
			out = append(out, Violation{Field: "image", Rule: "required", Message: "image is required"})
		}
		return out
	}

	ext := strings.ToLower(path.Ext(file.Name))
	wantType, ok := allowedImageTypes[ext]
	if !ok {
		out = append(out, Violation{Field: "image", Rule: "mimes", Message: "image must be of type jpeg, jpg, png, or gif"})
	} else if file.ContentType != "" && file.ContentType != wantType {
		out = append(out, Violation{Field: "image", Rule: "mimes", Message: "image content type does not match its extension"})
	}

	if file.Size > MaxImageSize {
		out = append(out, Violation{Field: "image", Rule: "max", Message: fmt.Sprintf("image must be at most %d bytes", MaxImageSize)})
	}
	return out
}

func validateCreate(in CreateInput) []Violation {
	out := validateName(in.Name)
	out = append(out, validateEmail(in.Email)...)
	return out
}

// validateUpdate applies the create rules to whichever fields are present.
// A present-but-empty field is a violation, same as on create.
func validateUpdate(in UpdateInput) []Violation {
	var out []Violation
	if in.Name != nil {
		out = append(out, validateName(*in.Name)...)
	}
	if in.Email != nil {
		out = append(out, validateEmail(*in.Email)...)
	}
	return out
}

// emailSyntaxOK reports whether email passed its field-level checks, gating
// the uniqueness lookup so malformed input never reaches the repository.
func emailSyntaxOK(violations []Violation) bool {
	for _, v := range violations {
		if v.Field == "email" {
			return false
		}
	}
	return true
}

func uniqueViolation() Violation {
	return Violation{Field: "email", Rule: "unique", Message: "email is already taken"}
}
