// Package customer implements the customer resource: validation, ownership
// policy, persistence, and the workflow that keeps the database row and the
// stored image consistent across partial failures.
package customer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Customer is a customer record owned by the user who created it.
type Customer struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	ImageURL  *string   `json:"imageUrl"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ErrNotFound is returned when a customer does not exist.
var ErrNotFound = errors.New("customer not found")

// ErrEmailTaken is returned when another customer already uses the email.
var ErrEmailTaken = errors.New("email already taken")

// ErrForbidden is returned when the acting user does not own the customer.
var ErrForbidden = errors.New("forbidden")

// ErrUploadFailed is returned when the object store rejected an image write.
// No row was persisted referencing the failed upload.
var ErrUploadFailed = errors.New("image upload failed")

// ErrPersistFailed is returned when a repository write failed after the image
// side effect already happened. On create the uploaded object is compensated
// away; on update the fresh upload is left orphaned for out-of-band cleanup.
var ErrPersistFailed = errors.New("could not persist customer")

// Violation describes a single failed validation rule on one field.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError carries every violated field of a request, not just the
// first. It is always produced before any side effect runs.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		fields = append(fields, v.Field)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}
