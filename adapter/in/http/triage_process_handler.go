package http

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/infra/middleware"
	"triage_server/pkg/apperr"
)

const (
	formFieldText  = "text"
	formFieldFiles = "files"
)

// ProcessHandler serves POST /api/process.
type ProcessHandler struct {
	svc            in.TriageService
	maxUploadBytes int
	timeout        time.Duration
}

// NewProcessHandler creates the handler. maxUploadBytes bounds each uploaded file.
func NewProcessHandler(svc in.TriageService, maxUploadBytes int) *ProcessHandler {
	return &ProcessHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// WithTimeout bounds the work done for one request. fasthttp does not cancel
// the request context when the client goes away, so this is the only limit
// on abandoned requests besides the per-call remote timeouts.
func (h *ProcessHandler) WithTimeout(d time.Duration) *ProcessHandler {
	h.timeout = d
	return h
}

func (h *ProcessHandler) Register(router fiber.Router) {
	router.Post("/process",
		middleware.RequireContentType(fiber.MIMEMultipartForm, fiber.MIMEApplicationForm),
		h.Process,
	)
}

// Process reads pasted text XOR uploaded files and returns one entry per item.
func (h *ProcessHandler) Process(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	outcomes, err := h.svc.Process(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(ToItemResponses(outcomes))
}

func (h *ProcessHandler) parseRequest(c *fiber.Ctx) (in.TriageRequest, error) {
	req := in.TriageRequest{Text: c.FormValue(formFieldText)}

	if !strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm) {
		return req, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return req, apperr.BadRequest("malformed multipart body").WithError(err)
	}
	if values := form.Value[formFieldText]; len(values) > 0 && req.Text == "" {
		req.Text = values[0]
	}

	// Browsers send an empty part when no file was picked.
	headers := lo.Filter(form.File[formFieldFiles], func(fh *multipart.FileHeader, _ int) bool {
		return fh.Filename != "" || fh.Size > 0
	})
	// Checked before reading uploads so a mixed request is not reported as oversized.
	if strings.TrimSpace(req.Text) != "" && len(headers) > 0 {
		return req, apperr.InvalidRequest("send either text or files, not both")
	}
	for _, fh := range headers {
		upload, err := h.readUpload(fh)
		if err != nil {
			return req, err
		}
		req.Uploads = append(req.Uploads, upload)
	}
	return req, nil
}

func (h *ProcessHandler) readUpload(fh *multipart.FileHeader) (domain.Upload, error) {
	if h.maxUploadBytes > 0 && fh.Size > int64(h.maxUploadBytes) {
		return domain.Upload{}, apperr.PayloadTooLarge(h.maxUploadBytes).WithDetail("file", fh.Filename)
	}

	f, err := fh.Open()
	if err != nil {
		return domain.Upload{}, apperr.BadRequest(fmt.Sprintf("cannot read upload %q", fh.Filename)).WithError(err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return domain.Upload{}, apperr.BadRequest(fmt.Sprintf("cannot read upload %q", fh.Filename)).WithError(err)
	}

	return domain.Upload{
		Filename:  fh.Filename,
		MediaType: fh.Header.Get(fiber.HeaderContentType),
		Data:      data,
	}, nil
}
