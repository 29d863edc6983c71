package status

import (
	"fmt"
	"strconv"

	"google.golang.org/grpc/codes"
)

// Code is the outcome of a call. The numeric values are the ones carried in
// the grpc-status header.
type Code uint32

const (
	OK Code = iota
	Cancelled
	Unknown
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	PermissionDenied
	ResourceExhausted
	FailedPrecondition
	Aborted
	OutOfRange
	Unimplemented
	Internal
	Unavailable
	DataLoss
	Unauthenticated
)

var _codeToString = map[Code]string{
	OK:                 "ok",
	Cancelled:          "cancelled",
	Unknown:            "unknown",
	InvalidArgument:    "invalid-argument",
	DeadlineExceeded:   "deadline-exceeded",
	NotFound:           "not-found",
	AlreadyExists:      "already-exists",
	PermissionDenied:   "permission-denied",
	ResourceExhausted:  "resource-exhausted",
	FailedPrecondition: "failed-precondition",
	Aborted:            "aborted",
	OutOfRange:         "out-of-range",
	Unimplemented:      "unimplemented",
	Internal:           "internal",
	Unavailable:        "unavailable",
	DataLoss:           "data-loss",
	Unauthenticated:    "unauthenticated",
}

// Codes returns every defined code in numeric order.
func Codes() []Code {
	all := make([]Code, 0, len(_codeToString))
	for c := OK; c <= Unauthenticated; c++ {
		all = append(all, c)
	}
	return all
}

func (c Code) String() string {
	if s, ok := _codeToString[c]; ok {
		return s
	}
	return strconv.Itoa(int(c))
}

// Valid reports whether c is one of the defined codes.
func (c Code) Valid() bool {
	return c <= Unauthenticated
}

// GRPCCode converts c to its grpc-go counterpart.
func (c Code) GRPCCode() codes.Code {
	return codes.Code(c)
}

// FromGRPCCode converts a grpc-go code. Codes outside the defined range
// become Unknown.
func FromGRPCCode(c codes.Code) Code {
	code := Code(c)
	if !code.Valid() {
		return Unknown
	}
	return code
}

func parseCode(s string) (Code, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return Unknown, fmt.Errorf("invalid grpc-status %q: %w", s, err)
	}
	code := Code(n)
	if !code.Valid() {
		return Unknown, nil
	}
	return code, nil
}
