package sieve

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/migadu/procsieve/consts"
)

func TestValidateScriptAcceptsRenderedOutput(t *testing.T) {
	script := NewScript()
	script.Add(If{
		Test: AllofTest{Tests: []Command{
			EnvelopeTest{Parts: []string{"to"}, Keys: []string{"*"}, MatchType: ":matches", AddressPart: ":detail"},
			MailboxExistsTest{Mailboxes: []string{"INBOX.${1}"}},
		}},
		Commands: []Command{
			Set{Variable: "subaddress", Value: "${1}"},
			Fileinto{Mailbox: "INBOX.${subaddress}", Create: true},
			Stop{},
		},
	})
	script.Add(Keep{})

	// Validate what the tool writes out: the rendered text plus the final CRLF.
	text := script.String() + "\r\n"
	if err := ValidateScript(text, GoSieveSupportedExtensions); err != nil {
		t.Fatalf("go-sieve rejected rendered script: %v\n%s", err, text)
	}
}

func TestValidateScriptRejectsGarbage(t *testing.T) {
	err := ValidateScript("if header { banana", GoSieveSupportedExtensions)
	if err == nil {
		t.Fatal("expected a load error for a malformed script")
	}
	if !errors.Is(err, consts.ErrValidationFailed) {
		t.Errorf("error %v is not classified as a validation failure", err)
	}
}

func TestCheckScriptSkipsUnvalidatableRequirements(t *testing.T) {
	script := NewScript()
	script.Add(If{
		Test:     BodyTest{Keys: []string{"unsubscribe"}, MatchType: ":contains"},
		Commands: []Command{Discard{}, Stop{}},
	})
	script.Add(Keep{})

	text := script.String()
	missing, err := CheckScript(text, script.Requires())
	if err != nil {
		t.Fatalf("CheckScript returned an error for an unvalidatable script: %v", err)
	}
	if !reflect.DeepEqual(missing, []string{"body"}) {
		t.Errorf("unvalidatable = %v, want [body]", missing)
	}
}

func TestCheckScriptValidatesSupportedRequirements(t *testing.T) {
	script := NewScript()
	script.Add(listsRule())
	script.Add(Keep{})

	text := script.String() + "\r\n"
	missing, err := CheckScript(text, script.Requires())
	if err != nil {
		t.Fatalf("CheckScript failed: %v\n%s", err, text)
	}
	if missing != nil {
		t.Errorf("unexpected unvalidatable extensions: %v", missing)
	}
}

func TestValidateExtensions(t *testing.T) {
	if err := ValidateExtensions(nil); err != nil {
		t.Errorf("nil extension list should validate: %v", err)
	}
	if err := ValidateExtensions([]string{"fileinto", "subaddress", "date"}); err != nil {
		t.Errorf("supported extensions should validate: %v", err)
	}

	err := ValidateExtensions([]string{"fileinto", "body"})
	if err == nil {
		t.Fatal("expected an error for the body extension")
	}
	if !errors.Is(err, consts.ErrUnsupportedExtension) {
		t.Errorf("error %v is not classified as an unsupported extension", err)
	}
	if !strings.Contains(err.Error(), "body") {
		t.Errorf("error should name the offending extension: %v", err)
	}
}

func TestUnvalidatableExtensions(t *testing.T) {
	got := UnvalidatableExtensions([]string{"fileinto", "enotify", "vacation-seconds", "copy"})
	want := []string{"enotify", "vacation-seconds"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UnvalidatableExtensions() = %v, want %v", got, want)
	}
}
