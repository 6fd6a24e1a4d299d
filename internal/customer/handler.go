package customer

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clientbook/service/internal/middleware"
	"github.com/clientbook/service/internal/response"
	"github.com/clientbook/service/internal/storage"
)

// maxFormMemory bounds the in-memory portion of multipart parsing; anything
// beyond it spills to temp files.
const maxFormMemory = 4 << 20

// Handler holds HTTP handlers for customer endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new customer Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Index godoc
//
//	@Summary		List customers
//	@Description	Returns all customers, newest first.
//	@Tags			customers
//	@Produce		json
//	@Success		200	{object}	response.Envelope{data=[]Customer}
//	@Failure		500	{object}	response.Envelope
//	@Router			/customers [get]
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	customers, err := h.svc.List(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}
	if customers == nil {
		customers = []*Customer{}
	}
	response.OK(w, customers)
}

// Show godoc
//
//	@Summary		Get a customer
//	@Description	Returns one customer by id.
//	@Tags			customers
//	@Produce		json
//	@Param			id	path		string	true	"Customer ID"
//	@Success		200	{object}	response.Envelope{data=Customer}
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/customers/{id} [get]
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, c)
}

// Create godoc
//
//	@Summary		Create a customer
//	@Description	Creates a customer owned by the authenticated user. The image is mandatory (jpeg/jpg/png/gif, max 2 MiB).
//	@Tags			customers
//	@Accept			mpfd
//	@Produce		json
//	@Security		BearerAuth
//	@Param			name	formData	string	true	"Customer name"
//	@Param			email	formData	string	true	"Customer email, unique"
//	@Param			image	formData	file	true	"Customer image"
//	@Success		201		{object}	response.Envelope{data=Customer}
//	@Failure		401		{object}	response.Envelope
//	@Failure		409		{object}	response.Envelope
//	@Failure		422		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/customers [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actingUserID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok || actingUserID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		response.BadRequest(w, "invalid multipart form")
		return
	}

	in := CreateInput{
		Name:  r.FormValue("name"),
		Email: r.FormValue("email"),
	}
	image, closeImage, err := formImage(r)
	if err != nil {
		response.BadRequest(w, "invalid image upload")
		return
	}
	defer closeImage()

	c, err := h.svc.Create(r.Context(), actingUserID, in, image)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, c)
}

// Update godoc
//
//	@Summary		Update a customer
//	@Description	Updates fields of a customer owned by the authenticated user. Omitted fields are left unchanged; a provided image replaces the stored one.
//	@Tags			customers
//	@Accept			mpfd
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string	true	"Customer ID"
//	@Param			name	formData	string	false	"Customer name"
//	@Param			email	formData	string	false	"Customer email, unique"
//	@Param			image	formData	file	false	"Replacement image"
//	@Success		200		{object}	response.Envelope{data=Customer}
//	@Failure		401		{object}	response.Envelope
//	@Failure		403		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		409		{object}	response.Envelope
//	@Failure		422		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/customers/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actingUserID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok || actingUserID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		response.BadRequest(w, "invalid multipart form")
		return
	}

	in := UpdateInput{
		Name:  formValuePtr(r, "name"),
		Email: formValuePtr(r, "email"),
	}
	image, closeImage, err := formImage(r)
	if err != nil {
		response.BadRequest(w, "invalid image upload")
		return
	}
	defer closeImage()

	c, err := h.svc.Update(r.Context(), actingUserID, chi.URLParam(r, "id"), in, image)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, c)
}

// Delete godoc
//
//	@Summary		Delete a customer
//	@Description	Deletes a customer owned by the authenticated user together with its stored image.
//	@Tags			customers
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Customer ID"
//	@Success		204
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/customers/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actingUserID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok || actingUserID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	if err := h.svc.Delete(r.Context(), actingUserID, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	response.NoContent(w)
}

// writeError maps workflow errors onto HTTP responses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		response.UnprocessableEntity(w, "validation error", verr.Violations)
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, "customer not found")
	case errors.Is(err, ErrForbidden):
		response.Forbidden(w, "you do not own this customer")
	case errors.Is(err, ErrEmailTaken):
		response.Conflict(w, "email already taken")
	default:
		response.InternalError(w)
	}
}

// formImage extracts the optional "image" part of a multipart form.
// The returned cleanup func closes the underlying file and is always safe to call.
func formImage(r *http.Request) (*storage.File, func(), error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, err
	}
	f := &storage.File{
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Reader:      file,
	}
	return f, func() { _ = file.Close() }, nil
}

// formValuePtr distinguishes "field absent" (nil) from "field present but empty".
func formValuePtr(r *http.Request, key string) *string {
	if r.MultipartForm == nil {
		return nil
	}
	values, ok := r.MultipartForm.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	return &values[0]
}
