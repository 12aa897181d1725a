package authapi

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"tasker/cmd/identity"
	"tasker/cmd/internal/avatar"
)

// multipartOverhead is the allowance for multipart framing on top of the file limit.
const multipartOverhead = 64 << 10

var errNoAvatarPart = errors.New("no avatar file in request")

func (h *Handler) handleAvatarUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := PrincipalFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.avatars.MaxBytes()+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_avatar", "please upload an avatar")
		return
	}

	png, err := h.readAvatarPart(mr)
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case avatar.IsPolicyError(err):
			writeError(w, http.StatusBadRequest, "invalid_avatar", err.Error())
		case errors.As(err, &maxErr):
			writeError(w, http.StatusBadRequest, "invalid_avatar", avatar.ErrTooLarge.Error())
		default:
			writeError(w, http.StatusBadRequest, "invalid_avatar", "please upload an avatar")
		}
		return
	}

	if err := h.accounts.SetAvatar(ctx, p.User.ID, png); err != nil {
		h.writeServiceError(ctx, w, "auth.avatar.upload", err)
		return
	}
	writeEmpty(w)
}

// readAvatarPart finds the avatar field, checks its file name and
// normalizes its content.
func (h *Handler) readAvatarPart(mr *multipart.Reader) ([]byte, error) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errNoAvatarPart
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != h.cfg.AvatarField {
			_ = part.Close()
			continue
		}
		defer func() { _ = part.Close() }()

		if err := h.avatars.CheckFilename(part.FileName()); err != nil {
			return nil, err
		}
		return h.avatars.Normalize(part)
	}
}

func (h *Handler) handleAvatarDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := PrincipalFromContext(ctx)

	if err := h.accounts.ClearAvatar(ctx, p.User.ID); err != nil {
		h.writeServiceError(ctx, w, "auth.avatar.delete", err)
		return
	}
	writeEmpty(w)
}

func (h *Handler) handleAvatarGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	png, err := h.accounts.Avatar(ctx, r.PathValue("id"))
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "could not find user or user's avatar")
			return
		}
		h.writeServiceError(ctx, w, "auth.avatar.get", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
