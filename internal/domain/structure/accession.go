package structure

import (
	"strings"

	"github.com/turtacn/ContactScope/pkg/errors"
)

// AccessionLength is the length of a structure accession code.
const AccessionLength = 4

// NormalizeAccession trims and upper-cases code and checks that it is four
// ASCII letters or digits.
func NormalizeAccession(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != AccessionLength {
		return "", errors.New(errors.CodeInvalidAccession, "accession code must be 4 characters").
			WithDetail("accession=" + code)
	}
	for i := 0; i < len(c); i++ {
		ch := c[i]
		if !(ch >= 'A' && ch <= 'Z') && !(ch >= '0' && ch <= '9') {
			return "", errors.New(errors.CodeInvalidAccession, "accession code must be alphanumeric").
				WithDetail("accession=" + code)
		}
	}
	return c, nil
}
