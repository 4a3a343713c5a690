package email

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/example/messenger/internal/models"
)

// buildMIME renders env as an RFC 5322 message. HTML and text bodies become a
// multipart/alternative part; attachments wrap everything in multipart/mixed.
func buildMIME(env *models.Envelope, messageID string, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "From", env.From)
	writeHeader(&buf, "To", strings.Join(env.To, ", "))
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", env.Subject))
	writeHeader(&buf, "Date", now.UTC().Format(time.RFC1123Z))
	if messageID != "" {
		writeHeader(&buf, "Message-Id", "<"+messageID+">")
	}
	writeHeader(&buf, "MIME-Version", "1.0")

	if len(env.Attachments) == 0 {
		if err := writeBody(&buf, env); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mixed := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", "multipart/mixed; boundary="+mixed.Boundary())
	buf.WriteString("\r\n")

	var body bytes.Buffer
	if err := writeBody(&body, env); err != nil {
		return nil, err
	}
	header, content, _ := bytes.Cut(body.Bytes(), []byte("\r\n\r\n"))
	part, err := mixed.CreatePart(parseHeader(header))
	if err != nil {
		return nil, fmt.Errorf("mime body part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("mime body write: %w", err)
	}

	for _, att := range env.Attachments {
		disposition := att.Disposition
		if disposition == "" {
			disposition = "attachment"
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", mime.FormatMediaType(att.MediaType(), map[string]string{"name": att.Filename}))
		h.Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": att.Filename}))
		h.Set("Content-Transfer-Encoding", "base64")
		part, err := mixed.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("mime attachment %q: %w", att.Filename, err)
		}
		if _, err := part.Write(wrapBase64(att.Base64())); err != nil {
			return nil, fmt.Errorf("mime attachment %q: %w", att.Filename, err)
		}
	}
	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("mime close: %w", err)
	}
	return buf.Bytes(), nil
}

// writeBody writes the content headers, a blank line and the body.
func writeBody(buf *bytes.Buffer, env *models.Envelope) error {
	switch {
	case env.HTML != "" && env.Text != "":
		alt := multipart.NewWriter(buf)
		writeHeader(buf, "Content-Type", "multipart/alternative; boundary="+alt.Boundary())
		buf.WriteString("\r\n")
		if err := writeQPPart(alt, "text/plain; charset=UTF-8", env.Text); err != nil {
			return err
		}
		if err := writeQPPart(alt, "text/html; charset=UTF-8", env.HTML); err != nil {
			return err
		}
		return alt.Close()
	case env.HTML != "":
		return writeQPSingle(buf, "text/html; charset=UTF-8", env.HTML)
	default:
		return writeQPSingle(buf, "text/plain; charset=UTF-8", env.Text)
	}
}

func writeQPSingle(buf *bytes.Buffer, contentType, body string) error {
	writeHeader(buf, "Content-Type", contentType)
	writeHeader(buf, "Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")
	qp := quotedprintable.NewWriter(buf)
	if _, err := qp.Write([]byte(normalizeBody(body))); err != nil {
		return fmt.Errorf("mime body write: %w", err)
	}
	return qp.Close()
}

func writeQPPart(w *multipart.Writer, contentType, body string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("mime part: %w", err)
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(normalizeBody(body))); err != nil {
		return fmt.Errorf("mime part write: %w", err)
	}
	return qp.Close()
}

func parseHeader(raw []byte) textproto.MIMEHeader {
	h := textproto.MIMEHeader{}
	for _, line := range strings.Split(string(raw), "\r\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		h.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return h
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	value = sanitizeHeaderValue(value)
	if value == "" {
		return
	}
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func wrapBase64(encoded string) []byte {
	var out bytes.Buffer
	for len(encoded) > 76 {
		out.WriteString(encoded[:76])
		out.WriteString("\r\n")
		encoded = encoded[76:]
	}
	out.WriteString(encoded)
	out.WriteString("\r\n")
	return out.Bytes()
}

func normalizeBody(body string) string {
	if body == "" {
		return ""
	}
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.ReplaceAll(normalized, "\n", "\r\n")
}

func sanitizeHeaderValue(value string) string {
	clean := strings.ReplaceAll(value, "\r", " ")
	clean = strings.ReplaceAll(clean, "\n", " ")
	return strings.TrimSpace(clean)
}
