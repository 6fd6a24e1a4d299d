package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/clientbook/service/internal/storage"
)

// ObjectStore is the image-storage port of the customer workflow,
// satisfied by storage.ImageStore in production.
type ObjectStore interface {
	Upload(ctx context.Context, file storage.File, directory string) (string, error)
	Delete(ctx context.Context, url string) error
	Replace(ctx context.Context, file storage.File, directory, oldURL string) (string, error)
}

// Service orchestrates the repository and the object store into the four
// mutating customer operations. Within one request the steps run strictly
// in order; the upload-before-persist ordering on create is what makes the
// compensating delete possible.
type Service struct {
	repo   Repository
	images ObjectStore
}

// NewService creates a new customer Service.
func NewService(repo Repository, images ObjectStore) *Service {
	return &Service{repo: repo, images: images}
}

// List returns all customers.
func (s *Service) List(ctx context.Context) ([]*Customer, error) {
	return s.repo.List(ctx)
}

// GetByID returns one customer or ErrNotFound.
func (s *Service) GetByID(ctx context.Context, id string) (*Customer, error) {
	return s.repo.GetByID(ctx, id)
}

// Create validates, uploads the image, then persists the row, in that order.
// If the row cannot be persisted the uploaded object is deleted again so the
// store never keeps an image no row references. Nothing is written anywhere
// while validation fails.
func (s *Service) Create(ctx context.Context, actingUserID string, in CreateInput, image *storage.File) (*Customer, error) {
	in.Email = NormalizeEmail(in.Email)

	violations := validateCreate(in)
	violations = append(violations, validateImage(image, true)...)
	if emailSyntaxOK(violations) {
		taken, err := s.repo.EmailTaken(ctx, in.Email, "")
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrPersistFailed, err)
		}
		if taken {
			violations = append(violations, uniqueViolation())
		}
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	imageURL, err := s.images.Upload(ctx, *image, imageDirectory)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUploadFailed, err)
	}

	created, err := s.repo.Create(ctx, actingUserID, in.Name, in.Email, imageURL)
	if err != nil {
		// Compensate: the object must not outlive the failed insert.
		if delErr := s.images.Delete(ctx, imageURL); delErr != nil {
			log.Error().Err(delErr).Str("url", imageURL).
				Msg("customer: compensating image delete failed, object orphaned")
		}
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrPersistFailed, err)
	}

	return created, nil
}

// Update applies partial field changes and an optional image replacement to a
// customer owned by the acting user. A failed upload aborts before the row is
// touched; a failed row update after a successful upload leaves the new object
// orphaned (logged, reconciled out-of-band).
func (s *Service) Update(ctx context.Context, actingUserID, id string, in UpdateInput, image *storage.File) (*Customer, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanModify(actingUserID, current); err != nil {
		return nil, err
	}

	if in.Email != nil {
		normalized := NormalizeEmail(*in.Email)
		in.Email = &normalized
	}

	violations := validateUpdate(in)
	violations = append(violations, validateImage(image, false)...)
	if in.Email != nil && emailSyntaxOK(violations) && *in.Email != current.Email {
		taken, err := s.repo.EmailTaken(ctx, *in.Email, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrPersistFailed, err)
		}
		if taken {
			violations = append(violations, uniqueViolation())
		}
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	name := current.Name
	if in.Name != nil {
		name = *in.Name
	}
	email := current.Email
	if in.Email != nil {
		email = *in.Email
	}

	imageURL := current.ImageURL
	if image != nil {
		var url string
		if current.ImageURL != nil {
			url, err = s.images.Replace(ctx, *image, imageDirectory, *current.ImageURL)
		} else {
			url, err = s.images.Upload(ctx, *image, imageDirectory)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUploadFailed, err)
		}
		imageURL = &url
	}

	updated, err := s.repo.Update(ctx, id, name, email, imageURL)
	if err != nil {
		if image != nil {
			log.Warn().Str("url", *imageURL).
				Msg("customer: row update failed after image upload, object orphaned")
		}
		if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrPersistFailed, err)
	}

	return updated, nil
}

// Delete removes a customer and its image. The image goes first: if the row
// delete then fails, the row is about to disappear anyway and retrying the
// whole operation is safe because the image delete is idempotent.
func (s *Service) Delete(ctx context.Context, actingUserID, id string) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := CanModify(actingUserID, current); err != nil {
		return err
	}

	if current.ImageURL != nil {
		if err := s.images.Delete(ctx, *current.ImageURL); err != nil {
			return fmt.Errorf("delete customer image: %w", err)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return nil
}
