package app

// DomainError carries an HTTP status alongside a stable machine code. Handlers
// pass these through mapError unchanged; everything else collapses to 500.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	return e.Message
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message, Details: details}
}
