package helpers

import (
	"bytes"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/k3a/html2text"
	"golang.org/x/text/encoding/charmap"

	_ "github.com/emersion/go-message/charset"
)

// VacationMessage is the content of a vacation(1) message file. The reason is
// the response text; when MIME is set it still carries its own header block
// and must be emitted with :mime.
type VacationMessage struct {
	Reason  string
	Subject string
	From    string
	MIME    bool
}

// ReadVacationMessage loads a vacation(1) message file. The file is parsed as
// a message: Subject and From headers become the response subject and sender,
// any further headers keep the reason in MIME form. A file that does not
// parse as a message at all is taken verbatim as the reason. HTML-only
// messages are flattened to plain text.
func ReadVacationMessage(path string) (VacationMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return VacationMessage{}, err
	}

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return VacationMessage{Reason: decodeText(trimLeadingBlankLines(string(raw)))}, nil
	}

	header := mail.Header{Header: entity.Header}
	subject, _ := header.Text("Subject")
	from, _ := header.Text("From")
	header.Del("Subject")
	header.Del("From")

	body, err := io.ReadAll(entity.Body)
	if err != nil {
		return VacationMessage{}, err
	}
	text := string(body)

	// The body reader already undid the transfer encoding, and HTML bodies
	// get flattened, so the headers describing either form must go.
	if mediaType, _, _ := header.ContentType(); mediaType == "text/html" {
		text = html2text.HTML2Text(text)
		header.Del("Content-Type")
	}
	header.Del("Content-Transfer-Encoding")

	msg := VacationMessage{Subject: decodeText(subject), From: decodeText(from), MIME: header.Len() > 0}
	if msg.MIME {
		var buf bytes.Buffer
		if err := textproto.WriteHeader(&buf, header.Header.Header); err != nil {
			return VacationMessage{}, err
		}
		msg.Reason = buf.String() + text
	} else {
		msg.Reason = text
	}
	msg.Reason = decodeText(trimLeadingBlankLines(msg.Reason))
	return msg, nil
}

// decodeText falls back to Latin-1 for text that is not valid UTF-8, the
// usual encoding of message files that predate UTF-8.
func decodeText(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return decoded
}

func trimLeadingBlankLines(s string) string {
	for {
		switch {
		case strings.HasPrefix(s, "\r\n"):
			s = s[2:]
		case strings.HasPrefix(s, "\n"):
			s = s[1:]
		default:
			return s
		}
	}
}
