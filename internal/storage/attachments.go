package storage

import (
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tessera-kb/tessera/internal/apperr"
	"github.com/tessera-kb/tessera/internal/checksum"
	"github.com/tessera-kb/tessera/internal/models"
)

// AddAttachment validates and copies an external file into the per-note
// attachment namespace (attachments/<note-id>/<filename>) and returns the
// record in its persisted shape. Database persistence is the caller's job.
//
// The size ceiling is enforced before any copy happens: an oversized source
// leaves no partial destination behind.
func (s *Storage) AddAttachment(sourcePath, noteID string) (*models.Attachment, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, apperr.FileOp("stat attachment source", sourcePath, err)
	}
	if info.Size() > s.cfg.MaxAttachmentSize {
		return nil, apperr.Attachment("file size %d exceeds maximum allowed size %d",
			info.Size(), s.cfg.MaxAttachmentSize)
	}

	filename := filepath.Base(sourcePath)
	destDir := filepath.Join(s.AttachmentsDir(), noteID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, apperr.FileOp("mkdir attachments", destDir, err)
	}
	destPath := filepath.Join(destDir, filename)

	sum, err := copyFile(sourcePath, destPath)
	if err != nil {
		_ = os.Remove(destPath)
		return nil, apperr.Attachment("copy %s: %v", filename, err)
	}

	mimeType, err := sniffMIME(destPath)
	if err != nil {
		mimeType = "application/octet-stream"
	}

	return &models.Attachment{
		ID:       uuid.NewString(),
		Filename: filename,
		MIMEType: mimeType,
		Size:     info.Size(),
		Checksum: sum,
		Path:     filepath.Join(noteID, filename),
		NoteIDs:  []string{noteID},
	}, nil
}

// RemoveAttachment deletes the attachment file. Removing an already-absent
// file succeeds.
func (s *Storage) RemoveAttachment(att *models.Attachment) error {
	abs := filepath.Join(s.AttachmentsDir(), att.Path)
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return apperr.FileOp("remove attachment", abs, err)
	}
	return nil
}

// copyFile copies src to dst and returns the checksum of the copied bytes.
func copyFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	h := io.TeeReader(in, out)
	sum, err := checksum.SumReader(h)
	if err != nil {
		return "", err
	}
	if err := out.Sync(); err != nil {
		return "", err
	}
	return sum, nil
}

// sniffMIME resolves a MIME type from the file extension, falling back to
// content sniffing on the first 512 bytes.
func sniffMIME(path string) (string, error) {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}
