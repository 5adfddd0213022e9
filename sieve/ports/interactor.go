package ports

// Interactor is how commands report to the operator, separate from the
// structured process log.
type Interactor interface {
	Output(message string)
	Warning(message string)
	Error(message string, err error)
}
