package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/ledger/internal/core"
	"github.com/JonMunkholm/ledger/internal/logging"
	"github.com/JonMunkholm/ledger/internal/spool"
)

// multipartOverhead is headroom for multipart boundaries and part headers
// on top of the file size limit.
const multipartOverhead = 64 << 10

// uploadRejectedResponse is returned when an upload held no new records.
// The rejected rows are still reported.
type uploadRejectedResponse struct {
	*core.ImportResult
	Code string `json:"code"`
}

// handleUpload imports a CSV file sent as multipart field "file".
// The file is streamed to the spool, imported, then always removed.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	part, err := filePart(r, "file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, core.KindValidation.Code(), fileTooLargeMessage(maxSize))
			return
		}
		writeError(w, http.StatusBadRequest, core.KindValidation.Code(), "No file uploaded")
		return
	}
	defer part.Close()

	ext := strings.ToLower(filepath.Ext(part.FileName()))
	if ext != ".csv" {
		writeError(w, http.StatusBadRequest, core.KindValidation.Code(), "Only CSV files are allowed")
		return
	}

	path, size, err := s.spool.Save(part, maxSize, ext)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, spool.ErrEmpty):
			writeError(w, http.StatusBadRequest, core.KindValidation.Code(), "The file is empty")
		case errors.Is(err, spool.ErrTooLarge), errors.As(err, &tooLarge):
			writeError(w, http.StatusBadRequest, core.KindValidation.Code(), fileTooLargeMessage(maxSize))
		default:
			s.respondError(w, r, err)
		}
		return
	}

	log := logging.FromContext(r.Context())
	defer func() {
		if err := s.spool.Remove(path); err != nil {
			log.Error("failed to remove spooled upload", "path", path, "error", err)
		}
	}()
	log.Info("upload spooled", "filename", part.FileName(), "bytes", size)

	f, err := os.Open(path)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer f.Close()

	// The route's timeout middleware bounds the import with Upload.Timeout.
	result, err := s.service.ImportReader(r.Context(), f)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, core.ErrNothingToImport) && result != nil:
		writeJSON(w, http.StatusBadRequest, uploadRejectedResponse{
			ImportResult: result,
			Code:         core.KindValidation.Code(),
		})
	default:
		s.respondError(w, r, err)
	}
}

// filePart returns the first multipart part named field that carries a
// file. Other parts are skipped without buffering them.
func filePart(r *http.Request, field string) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, http.ErrMissingFile
			}
			return nil, err
		}
		if part.FormName() == field && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

func fileTooLargeMessage(limit int64) string {
	return fmt.Sprintf("File size exceeds limit of %d bytes", limit)
}
