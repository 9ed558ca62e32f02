package workflow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadCustomerID rejects a customer id that is neither a positive
// integer nor the anonymous sentinel.
var ErrBadCustomerID = errors.New("invalid customer id")

// CustomerID parses the customer id a front-end sends. Empty and the
// anonymous sentinel both mean an anonymous session and yield zero.
func CustomerID(raw, anonymous string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == anonymous {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w %q", ErrBadCustomerID, raw)
	}
	return id, nil
}
