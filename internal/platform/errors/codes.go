// Package errors provides structured error handling for the scenario tooling.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Startup errors
	CodeConfigurationInvalid Code = "CONFIGURATION_INVALID"
	CodeOutputFolder         Code = "OUTPUT_FOLDER"
	CodeConnectionFailed     Code = "CONNECTION_FAILED"

	// Domain errors raised by repositories during seeding
	CodeDomainValidation Code = "DOMAIN_VALIDATION"
	CodeDuplicateData    Code = "DUPLICATE_DATA"
	CodeNotFound         Code = "NOT_FOUND"

	// Scenario pipeline errors
	CodePrerequisiteMissing Code = "PREREQUISITE_MISSING"
	CodeSerializationFailed Code = "SERIALIZATION_FAILED"
	CodeReplayFailed        Code = "REPLAY_FAILED"
	CodeResetFailed         Code = "RESET_FAILED"
	CodeCaptureFailed       Code = "CAPTURE_FAILED"
	CodeSeedFailed          Code = "SEED_FAILED"
)

// Process exit codes reported by the scenarios command.
const (
	ExitOK                = 0
	ExitInvalidParameters = 1
	ExitOutputFolder      = 2
	ExitConnection        = 3
	ExitScenarioExecution = 4
)

// ExitCode maps an error code to the process exit code of the scenarios command.
func (c Code) ExitCode() int {
	switch c {
	case CodeConfigurationInvalid:
		return ExitInvalidParameters
	case CodeOutputFolder:
		return ExitOutputFolder
	case CodeConnectionFailed:
		return ExitConnection
	default:
		return ExitScenarioExecution
	}
}
