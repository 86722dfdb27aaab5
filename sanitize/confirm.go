package sanitize

import (
	"bufio"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// ConfirmToken is the only operator input that lets a destructive run start.
const ConfirmToken = "CONFIRM"

// CheckConfirmation accepts exactly ConfirmToken: case, spacing and any
// other difference reject.
func CheckConfirmation(input string) error {
	if input == ConfirmToken {
		return nil
	}
	return errors.WithHint(
		newError(ConfirmationRejected, 0, errors.Newf("got %q", input)),
		"type "+ConfirmToken+" in uppercase to proceed",
	)
}

// ReadConfirmation reads one line from r and checks it. Only the line
// terminator ("\n" or "\r\n") is removed before comparing.
func ReadConfirmation(r io.Reader) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return newError(ConfirmationRejected, 0, errors.Wrap(err, "reading confirmation"))
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return CheckConfirmation(line)
}
