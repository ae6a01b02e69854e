package helpers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeMessageFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vacation.msg")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadVacationMessagePlainText(t *testing.T) {
	path := writeMessageFile(t, "I am away until Monday.\nBack then.\n")

	msg, err := ReadVacationMessage(path)
	require.NoError(t, err)
	require.Equal(t, "I am away until Monday.\nBack then.\n", msg.Reason)
	require.Empty(t, msg.Subject)
	require.Empty(t, msg.From)
	require.False(t, msg.MIME)
}

func TestReadVacationMessageHeaders(t *testing.T) {
	path := writeMessageFile(t, "Subject: Re: $SUBJECT\nFrom: Alice <alice@example.org>\n\nGone fishing.\n")

	msg, err := ReadVacationMessage(path)
	require.NoError(t, err)
	require.Equal(t, "Gone fishing.\n", msg.Reason)
	require.Equal(t, "Re: $SUBJECT", msg.Subject)
	require.Equal(t, "Alice <alice@example.org>", msg.From)
	require.False(t, msg.MIME)
}

func TestReadVacationMessageMIME(t *testing.T) {
	path := writeMessageFile(t, "Subject: Away\nContent-Type: text/plain; format=flowed\n\nGone fishing.\n")

	msg, err := ReadVacationMessage(path)
	require.NoError(t, err)
	require.True(t, msg.MIME)
	require.Equal(t, "Away", msg.Subject)
	require.True(t, strings.HasPrefix(msg.Reason, "Content-Type: text/plain; format=flowed"))
	require.Contains(t, msg.Reason, "Gone fishing.")
}

func TestReadVacationMessageHTML(t *testing.T) {
	path := writeMessageFile(t, "Content-Type: text/html\n\n<html><body><p>Gone <b>fishing</b>.</p></body></html>\n")

	msg, err := ReadVacationMessage(path)
	require.NoError(t, err)
	require.False(t, msg.MIME)
	require.Contains(t, msg.Reason, "fishing")
	require.NotContains(t, msg.Reason, "<b>")
	require.NotContains(t, msg.Reason, "Content-Type")
}

func TestReadVacationMessageLatin1(t *testing.T) {
	path := writeMessageFile(t, "Subject: Absence\n\nJe r\xe9ponds \xe0 mon retour.\n")

	msg, err := ReadVacationMessage(path)
	require.NoError(t, err)
	require.Equal(t, "Je réponds à mon retour.\n", msg.Reason)
}

func TestReadVacationMessageLeadingBlankLines(t *testing.T) {
	path := writeMessageFile(t, "Subject: Away\n\n\n\nGone.\n")

	msg, err := ReadVacationMessage(path)
	require.NoError(t, err)
	require.Equal(t, "Gone.\n", msg.Reason)
}

func TestReadVacationMessageMissing(t *testing.T) {
	_, err := ReadVacationMessage(filepath.Join(t.TempDir(), "no-such-file"))
	require.Error(t, err)
	require.True(t, os.IsNotExist(err))
}

func TestHashContent(t *testing.T) {
	a := HashContent([]byte("require \"fileinto\";"))
	b := HashContent([]byte("require \"fileinto\";"))
	c := HashContent([]byte("keep;"))

	require.Len(t, a, 64)
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
